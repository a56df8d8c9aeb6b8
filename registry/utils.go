package registry

import (
	"fmt"
	"os"
	"path"
	"strings"

	protoparser "github.com/yoheimuta/go-protoparser/v4"
	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// collectImports parses protoFile and, depth first, every file it imports from
// the proto directories. It returns the on-disk paths in visiting order, so the
// requested file is first. Import cycles are cut at the first revisit.
func (r *Registry) collectImports(protoFile string) ([]string, error) {
	name := strings.Trim(protoFile, `"`)
	root, err := r.locateProto(name)
	if err != nil {
		return nil, err
	}

	var order []string
	seen := make(map[string]bool)
	var visit func(filePath, name string) error
	visit = func(filePath, name string) error {
		if seen[filePath] {
			return nil
		}
		seen[filePath] = true
		order = append(order, filePath)

		parsed, err := r.parseProto(filePath, name)
		if err != nil {
			return err
		}
		entity := &protoFileEntity{name: name}
		for _, imp := range importsOf(parsed) {
			// linked into the binary, e.g. google/protobuf/*.proto
			if _, err := protoregistry.GlobalFiles.FindFileByPath(imp); err == nil {
				continue
			}
			impPath, err := r.locateProto(imp)
			if err != nil {
				return err
			}
			entity.imports = append(entity.imports, impPath)
			if err := visit(impPath, imp); err != nil {
				return err
			}
		}
		r.parsedProtoBody[filePath] = parsed
		r.protoEntities[filePath] = entity
		r.logger.Debug("parsed proto file", "file", name, "path", filePath, "imports", len(entity.imports))
		return nil
	}
	if err := visit(root, name); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Registry) parseProto(filePath, name string) (*protoparserparser.Proto, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()
	parsed, err := protoparser.Parse(f, protoparser.WithFilename(name))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return parsed, nil
}

func importsOf(parsed *protoparserparser.Proto) []string {
	var imports []string
	for _, body := range parsed.ProtoBody {
		if imp, ok := body.(*protoparserparser.Import); ok {
			imports = append(imports, strings.Trim(imp.Location, `"`))
		}
	}
	return imports
}

// locateProto returns the path of name under the first proto directory that
// holds it.
func (r *Registry) locateProto(name string) (string, error) {
	if len(r.ProtoDirectories) == 0 {
		return "", fmt.Errorf("path does not exist: %s: no proto directories configured", name)
	}
	var lastErr error
	for _, dir := range r.ProtoDirectories {
		candidate := path.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			lastErr = err
			continue
		}
		if !strings.HasSuffix(candidate, ".proto") {
			return "", fmt.Errorf("is not a .proto file %s", candidate)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("path does not exist: %s: %w", name, lastErr)
}

// entityKinds maps fully qualified type names to TYPE_MESSAGE or TYPE_ENUM.
type entityKinds map[string]descriptorpb.FieldDescriptorProto_Type

// referencedType resolves a type reference made from inside scope, the full
// name of the referring message. A leading dot means the name is already fully
// qualified. Otherwise the innermost enclosing scope that declares it wins, and
// a name qualified with another package is taken as is.
// See https://protobuf.dev/programming-guides/proto3/#packages-and-name-resolution
func referencedType(typeName, scope string, known entityKinds) (string, error) {
	if strings.HasPrefix(typeName, ".") {
		full := typeName[1:]
		if _, ok := known[full]; !ok {
			return "", fmt.Errorf("unable to resolve fully qualified type name: %s", typeName)
		}
		return full, nil
	}
	for s := scope; s != ""; s = parentScope(s) {
		if _, ok := known[s+"."+typeName]; ok {
			return s + "." + typeName, nil
		}
	}
	if _, ok := known[typeName]; ok {
		return typeName, nil
	}
	return "", fmt.Errorf("unable to resolve type name: %s", typeName)
}

func parentScope(scope string) string {
	if i := strings.LastIndexByte(scope, '.'); i >= 0 {
		return scope[:i]
	}
	return ""
}
