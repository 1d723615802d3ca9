package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSource = `package sample

import "fmt"

// Greeter says hello.
type Greeter struct {
	Name string
}

// Greet returns a greeting.
func (g *Greeter) Greet() string {
	return fmt.Sprintf("hello, %s", g.Name)
}

func Standalone(a int, b string) error {
	return nil
}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.go")
	if err := os.WriteFile(path, []byte(sampleSource), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestScanExtractsFunctionsClassesAndImports(t *testing.T) {
	dir := writeSample(t)
	s := New()

	files, err := s.Scan([]string{dir})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}

	f := files[0]
	if len(f.Imports) != 1 || f.Imports[0] != "fmt" {
		t.Fatalf("expected [fmt] import, got %v", f.Imports)
	}
	if len(f.Classes) != 1 || f.Classes[0].Name != "Greeter" {
		t.Fatalf("expected Greeter class, got %v", f.Classes)
	}
	if len(f.Classes[0].Methods) != 1 || f.Classes[0].Methods[0] != "Greet" {
		t.Fatalf("expected Greeter.Greet method, got %v", f.Classes[0].Methods)
	}

	var sawStandalone bool
	for _, fn := range f.Functions {
		if fn.Name == "Standalone" {
			sawStandalone = true
			if len(fn.Args) != 2 {
				t.Fatalf("expected 2 args for Standalone, got %v", fn.Args)
			}
		}
	}
	if !sawStandalone {
		t.Fatalf("expected Standalone function, got %v", f.Functions)
	}
}

func TestScanSkipsHiddenAndVendorDirs(t *testing.T) {
	root := t.TempDir()
	hidden := filepath.Join(root, ".git")
	vendor := filepath.Join(root, "vendor")
	if err := os.MkdirAll(hidden, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(vendor, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(hidden, "ignored.go"), []byte(sampleSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vendor, "ignored.go"), []byte(sampleSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "visible.go"), []byte(sampleSource), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	files, err := s.Scan([]string{root})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "visible.go" {
		t.Fatalf("expected only visible.go scanned, got %v", files)
	}
}

func TestSymbolLookupReturnsSourceSlice(t *testing.T) {
	dir := writeSample(t)
	path := filepath.Join(dir, "sample.go")
	s := New()

	src, err := s.SymbolLookup(context.Background(), path, "Standalone")
	if err != nil {
		t.Fatalf("SymbolLookup: %v", err)
	}
	if !strings.Contains(src, "func Standalone") {
		t.Fatalf("expected Standalone source, got: %s", src)
	}
}

func TestSymbolLookupUnknownSymbolErrors(t *testing.T) {
	dir := writeSample(t)
	path := filepath.Join(dir, "sample.go")
	s := New()

	if _, err := s.SymbolLookup(context.Background(), path, "NoSuchSymbol"); err == nil {
		t.Fatal("expected an error for an unknown symbol")
	}
}
