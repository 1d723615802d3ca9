// Package scanner provides a reference implementation of the Session's
// workspace Scanner contract (spec §6), using go-tree-sitter's Go grammar
// to extract a structural map of functions, types, and imports. It is a
// swappable default — the kernel only depends on session.Scanner.
//
// Grounded on the teacher's internal/world tree-sitter AST walker
// (ast_treesitter.go's symbol extraction for function_declaration,
// type_declaration/struct_type, and import_declaration node shapes), not
// copied verbatim: the teacher emits Mangle facts for its own world model,
// this package emits the plain ScannedFile/ScannedClass/ScannedFunction
// structs the Session's Scanner interface defines.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/session"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// skipDirs names directories the scan never descends into, matching
// spec §6's "skip vendor/hidden directories by default".
var skipDirs = map[string]bool{
	"vendor":         true,
	"node_modules":   true,
	".git":           true,
	".amnesic_cache": true,
}

// Scanner walks a set of root directories and parses every .go file with
// tree-sitter's Go grammar, implementing session.Scanner.
type Scanner struct{}

// New returns a Scanner. It holds no state; parsers are created per call
// since *sitter.Parser is not safe for concurrent reuse across goroutines.
func New() *Scanner { return &Scanner{} }

// Scan implements session.Scanner.
func (s *Scanner) Scan(roots []string) ([]session.ScannedFile, error) {
	var out []session.ScannedFile
	seen := make(map[string]bool)

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if name != "." && (skipDirs[name] || strings.HasPrefix(name, ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			if seen[path] {
				return nil
			}
			seen[path] = true

			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil // unreadable file: skip, don't fail the whole scan
			}
			out = append(out, parseGoFile(path, content))
			return nil
		})
		if err != nil {
			return nil, kernel.Wrap(kernel.IOFailure, "scanner.Scan", err)
		}
	}
	return out, nil
}

// SymbolLookup implements session.Scanner's "contextual grep" support
// (spec §6's path?query=symbol stage syntax): it returns the source text
// of the named top-level function or type in file.
func (s *Scanner) SymbolLookup(ctx context.Context, file, symbolName string) (string, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return "", kernel.Wrap(kernel.IOFailure, "scanner.SymbolLookup", err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return "", kernel.Wrap(kernel.IOFailure, "scanner.SymbolLookup", err)
	}
	defer tree.Close()

	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found != nil {
			return
		}
		switch n.Type() {
		case "function_declaration", "method_declaration":
			if name := n.ChildByFieldName("name"); name != nil && name.Content(content) == symbolName {
				found = n
				return
			}
		case "type_spec":
			if name := n.ChildByFieldName("name"); name != nil && name.Content(content) == symbolName {
				found = n
				return
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
			if found != nil {
				return
			}
		}
	}
	walk(tree.RootNode())

	if found == nil {
		return "", kernel.Newf(kernel.NotFound, "scanner.SymbolLookup", "symbol %q not found in %s", symbolName, file)
	}
	return found.Content(content), nil
}

// parseGoFile extracts the structural map of one file via tree-sitter.
// Parse failures degrade to an empty ScannedFile rather than aborting the
// whole workspace scan — a syntactically broken file shouldn't blind the
// Session to every other file.
func parseGoFile(path string, content []byte) session.ScannedFile {
	sf := session.ScannedFile{Path: path}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return sf
	}
	defer tree.Close()

	classesByName := make(map[string]*session.ScannedClass)
	var classOrder []string

	getText := func(n *sitter.Node) string {
		if n == nil {
			return ""
		}
		return n.Content(content)
	}

	docFor := func(n *sitter.Node) string {
		prev := n.PrevSibling()
		var lines []string
		for prev != nil && prev.Type() == "comment" {
			lines = append([]string{strings.TrimSpace(strings.TrimPrefix(getText(prev), "//"))}, lines...)
			prev = prev.PrevSibling()
		}
		return strings.Join(lines, " ")
	}

	splitArgs := func(paramsNode *sitter.Node) []string {
		if paramsNode == nil {
			return nil
		}
		var args []string
		for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
			p := paramsNode.NamedChild(i)
			if p.Type() == "parameter_declaration" || p.Type() == "variadic_parameter_declaration" {
				args = append(args, strings.TrimSpace(getText(p)))
			}
		}
		return args
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			nameNode := n.ChildByFieldName("name")
			if nameNode != nil {
				sf.Functions = append(sf.Functions, session.ScannedFunction{
					Name:      getText(nameNode),
					Args:      splitArgs(n.ChildByFieldName("parameters")),
					LineStart: int(n.StartPoint().Row) + 1,
					LineEnd:   int(n.EndPoint().Row) + 1,
					Docstring: docFor(n),
				})
			}

		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			recvNode := n.ChildByFieldName("receiver")
			if nameNode != nil {
				methodName := getText(nameNode)
				sf.Functions = append(sf.Functions, session.ScannedFunction{
					Name:      methodName,
					Args:      splitArgs(n.ChildByFieldName("parameters")),
					LineStart: int(n.StartPoint().Row) + 1,
					LineEnd:   int(n.EndPoint().Row) + 1,
					Docstring: docFor(n),
				})
				if recvType := receiverTypeName(recvNode, content); recvType != "" {
					if cls, ok := classesByName[recvType]; ok {
						cls.Methods = append(cls.Methods, methodName)
					}
				}
			}

		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				name := getText(nameNode)
				typeNode := spec.ChildByFieldName("type")
				if typeNode == nil || typeNode.Type() != "struct_type" {
					continue // spec/session's notion of "class" maps onto Go structs only
				}
				cls := &session.ScannedClass{
					Name:      name,
					LineStart: int(spec.StartPoint().Row) + 1,
					LineEnd:   int(spec.EndPoint().Row) + 1,
				}
				classesByName[name] = cls
				classOrder = append(classOrder, name)
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())

	for _, name := range classOrder {
		sf.Classes = append(sf.Classes, *classesByName[name])
	}

	sf.Imports = extractImports(tree.RootNode(), content)
	return sf
}

// receiverTypeName strips a pointer receiver's "*" to match the bare
// struct name recorded in classesByName.
func receiverTypeName(recvNode *sitter.Node, content []byte) string {
	if recvNode == nil {
		return ""
	}
	for i := 0; i < int(recvNode.NamedChildCount()); i++ {
		param := recvNode.NamedChild(i)
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		name := typeNode.Content(content)
		return strings.TrimPrefix(name, "*")
	}
	return ""
}

func extractImports(root *sitter.Node, content []byte) []string {
	var imports []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			if pathNode := n.ChildByFieldName("path"); pathNode != nil {
				imports = append(imports, strings.Trim(pathNode.Content(content), `"`))
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return imports
}
