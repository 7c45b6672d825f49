package identity

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func parsePackageFiles(t *testing.T, mode parser.Mode) (*token.FileSet, map[string]*ast.File) {
	t.Helper()
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve current test file path")
	}
	dir := filepath.Dir(currentFile)
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		t.Fatalf("glob files: %v", err)
	}
	fset := token.NewFileSet()
	out := make(map[string]*ast.File)
	for _, file := range files {
		base := filepath.Base(file)
		if strings.HasSuffix(base, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, file, nil, mode)
		if err != nil {
			t.Fatalf("parse file %s: %v", file, err)
		}
		out[base] = parsed
	}
	return fset, out
}

func TestArchitecture_IdentityImportsContractsOnly(t *testing.T) {
	fset, files := parsePackageFiles(t, parser.ImportsOnly)
	var violations []string
	for base, parsed := range files {
		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(importPath, "did-vault/go-backend/") {
				continue
			}
			if importPath == "did-vault/go-backend/internal/domains/contracts" {
				continue
			}
			pos := fset.Position(imp.Path.Pos())
			violations = append(violations, fmt.Sprintf("%s:%d imports %q", base, pos.Line, importPath))
		}
	}
	if len(violations) == 0 {
		return
	}
	t.Fatalf("internal/identity may import only domains/contracts:\n- %s", strings.Join(violations, "\n- "))
}

func TestArchitecture_NoRawKeyAccessors(t *testing.T) {
	forbidden := map[string]struct{}{
		"ExtendedKey": {},
		"MasterKey":   {},
	}
	fset, files := parsePackageFiles(t, parser.ParseComments)
	var violations []string
	for base, node := range files {
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Name == nil {
				continue
			}
			if _, isForbidden := forbidden[fn.Name.Name]; !isForbidden {
				continue
			}
			pos := fset.Position(fn.Name.Pos())
			violations = append(violations, fmt.Sprintf("%s:%d exports %s", base, pos.Line, fn.Name.Name))
		}
	}
	if len(violations) == 0 {
		return
	}
	t.Fatalf("root key material must stay behind RootIdentity:\n- %s", strings.Join(violations, "\n- "))
}
