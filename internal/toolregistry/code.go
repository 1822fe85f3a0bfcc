package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"

	"github.com/harrison/corerun/internal/models"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// TreeSitterOutlineTool implements treesitter.outline: a read-only structural
// summary of a source file (top-level function and type declarations), the
// first of the "treesitter.*" code-intelligence tools the registry contract
// calls for. No locking: it only reads.
type TreeSitterOutlineTool struct{}

func (TreeSitterOutlineTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "treesitter.outline",
		Description: "Return the top-level declarations (functions, types) of a Go source file.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	}
}

func (TreeSitterOutlineTool) Call(ctx context.Context, input []byte) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("treesitter.outline: bad arguments: %w", err)
	}

	src, err := os.ReadFile(args.Path)
	if err != nil {
		return "", fmt.Errorf("treesitter.outline: %w", err)
	}

	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return "", fmt.Errorf("treesitter.outline: parse failed: %w", err)
	}
	defer tree.Close()

	var decls []string
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration", "method_declaration", "type_declaration":
			line := strings.SplitN(child.Content(src), "\n", 2)[0]
			decls = append(decls, line)
		}
	}

	out, err := json.Marshal(decls)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// LSPDefinitionTool implements lsp.definition: read-only "where is this
// identifier declared" lookup. A full language-server client is out of scope
// here — there is no grounded, production-ready Go LSP client in the
// reference pack — so this resolves definitions within a single file using
// go/ast, which covers the common single-file case exactly and degrades to
// NotFound rather than pretending to support cross-package resolution.
type LSPDefinitionTool struct{}

func (LSPDefinitionTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "lsp.definition",
		Description: "Find the declaration of an identifier within a single Go source file.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"},"identifier":{"type":"string"}},"required":["path","identifier"]}`,
	}
}

func (LSPDefinitionTool) Call(_ context.Context, input []byte) (string, error) {
	var args struct {
		Path       string `json:"path"`
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("lsp.definition: bad arguments: %w", err)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, args.Path, nil, parser.AllErrors)
	if err != nil {
		return "", fmt.Errorf("lsp.definition: %w", err)
	}

	var found string
	ast.Inspect(file, func(n ast.Node) bool {
		if found != "" {
			return false
		}
		switch decl := n.(type) {
		case *ast.FuncDecl:
			if decl.Name.Name == args.Identifier {
				found = fmt.Sprintf("%s:%d", args.Path, fset.Position(decl.Pos()).Line)
			}
		case *ast.TypeSpec:
			if decl.Name.Name == args.Identifier {
				found = fmt.Sprintf("%s:%d", args.Path, fset.Position(decl.Pos()).Line)
			}
		}
		return found == ""
	})

	if found == "" {
		return "", fmt.Errorf("lsp.definition: %q not found in %s", args.Identifier, args.Path)
	}
	return found, nil
}
