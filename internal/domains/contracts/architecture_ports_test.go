package contracts

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

var portFiles = []string{"storage_ports.go", "ledger_ports.go", "errors.go"}

func TestArchitecture_ContractsNoInfraImports(t *testing.T) {
	for _, name := range portFiles {
		file := loadContractsFile(t, name)
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if strings.HasPrefix(path, "did-vault/go-backend/internal/") {
				t.Fatalf("%s must only depend on pkg/models and the standard library, found %q", name, path)
			}
		}
	}
}

func TestArchitecture_StoragePortShape(t *testing.T) {
	file := loadContractsFile(t, "storage_ports.go")
	storage := mustFindInterface(t, file, "Storage")
	assertInterfaceMethods(t, storage, []string{
		"Close",
		"ContainsCredentials", "ContainsDocument", "ContainsPrivateKeys", "ContainsRootIdentity",
		"DeleteCredential", "DeleteDID", "DeletePrivateKey",
		"ListCredentials", "ListDIDs", "ListPrivateKeys",
		"LoadCredential", "LoadCredentialMeta", "LoadCursor", "LoadDocument", "LoadDocumentMeta",
		"LoadMnemonic", "LoadPrivateKey", "LoadRootIdentity",
		"ReEncrypt",
		"StoreCredential", "StoreCredentialMeta", "StoreCursor", "StoreDocument", "StoreDocumentMeta",
		"StoreMnemonic", "StorePrivateKey", "StoreRootIdentity",
	})
}

func TestArchitecture_LedgerPortShape(t *testing.T) {
	file := loadContractsFile(t, "ledger_ports.go")
	assertInterfaceMethods(t, mustFindInterface(t, file, "Ledger"),
		[]string{"Create", "Deactivate", "DeactivateTarget", "Resolve", "Update"})
	assertInterfaceMethods(t, mustFindInterface(t, file, "Signer"), []string{"Sign"})

	// Ledger calls may block on the network.
	ledger := mustFindInterface(t, file, "Ledger")
	for _, field := range ledger.Methods.List {
		fn := field.Type.(*ast.FuncType)
		first, ok := fn.Params.List[0].Type.(*ast.SelectorExpr)
		if !ok || first.Sel.Name != "Context" {
			t.Fatalf("Ledger.%s must take a context.Context first", field.Names[0].Name)
		}
	}
}

func loadContractsFile(t *testing.T, name string) *ast.File {
	t.Helper()
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve current file path")
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filepath.Join(filepath.Dir(currentFile), name), nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return file
}

func mustFindInterface(t *testing.T, file *ast.File, name string) *ast.InterfaceType {
	t.Helper()
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || ts.Name.Name != name {
				continue
			}
			iface, ok := ts.Type.(*ast.InterfaceType)
			if !ok {
				t.Fatalf("type %q exists but is not an interface", name)
			}
			return iface
		}
	}
	t.Fatalf("interface %q not found", name)
	return nil
}

func assertInterfaceMethods(t *testing.T, iface *ast.InterfaceType, expected []string) {
	t.Helper()
	methods := make([]string, 0, len(iface.Methods.List))
	for _, field := range iface.Methods.List {
		if len(field.Names) == 0 {
			t.Fatalf("port interfaces must not embed other interfaces")
		}
		for _, name := range field.Names {
			methods = append(methods, name.Name)
		}
	}
	slices.Sort(methods)
	exp := append([]string(nil), expected...)
	slices.Sort(exp)
	if !slices.Equal(methods, exp) {
		t.Fatalf("unexpected methods: got=%v want=%v", methods, exp)
	}
}
