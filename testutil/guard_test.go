package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type captureFatal struct{ msg string }

func (c *captureFatal) Fatalf(format string, args ...any) { c.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		in   string
		want bool
	}{
		{"internal nested", InternalImportForbidden, "pharmacore/internal/core", true},
		{"internal public", InternalImportForbidden, "pharmacore/pkg/domain", false},
		{"infra", InfraImportForbidden, "pharmacore/internal/infra/persistence/memory", true},
		{"infra blob facade", InfraImportForbidden, "pharmacore/internal/blob", false},
		{"prefix exact", PrefixForbidden("pharmacore/cmd"), "pharmacore/cmd", true},
		{"prefix child", PrefixForbidden("pharmacore/cmd"), "pharmacore/cmd/pharmacore", true},
		{"prefix sibling", PrefixForbidden("pharmacore/cmd"), "pharmacore/cmdline", false},
		{"any of", AnyOf(InfraImportForbidden, PrefixForbidden("x")), "x/y", true},
		{"none of", AnyOf(), "x/y", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDirectViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.go", "package tmp\nimport (\n\"fmt\"\n\"pharmacore/internal/infra/blob/s3\"\n)\nvar _ = fmt.Sprint\n")
	write("a_test.go", "package tmp\nimport \"pharmacore/internal/infra/persistence/memory\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	viols, err := directViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "blob/s3 (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, PrefixForbidden("net/http"), "no transport")

	write("broken.go", "package tmp\nimport (")
	if _, err := directViolations(dir, InfraImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directViolations(filepath.Join(dir, "missing"), InfraImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveViolationsWalksGraph(t *testing.T) {
	leaf := &packages.Package{PkgPath: "pharmacore/internal/infra/persistence/memory"}
	mid := &packages.Package{PkgPath: "pharmacore/internal/core", Imports: map[string]*packages.Package{leaf.PkgPath: leaf}}
	root := &packages.Package{PkgPath: "pharmacore/cmd/pharmacore", Imports: map[string]*packages.Package{mid.PkgPath: mid}}

	orig := loadPackages
	defer func() { loadPackages = orig }()
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveViolations("./...", InfraImportForbidden)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(viols) != 1 || viols[0] != leaf.PkgPath {
		t.Fatalf("unexpected violations %v", viols)
	}

	leaf.Errors = []packages.Error{{Msg: "broken"}}
	if _, err := transitiveViolations("./...", InfraImportForbidden); err == nil {
		t.Fatalf("expected package errors to surface")
	}

	loadPackages = func(string) ([]*packages.Package, error) { return nil, errors.New("no go") }
	if _, err := transitiveViolations("./...", InfraImportForbidden); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestFailIfViolations(t *testing.T) {
	c := &captureFatal{}
	failIfViolations(c, "direct import", "reason", nil)
	if c.msg != "" {
		t.Fatalf("expected no failure, got %q", c.msg)
	}
	failIfViolations(c, "direct import", "reason", []string{"a", "b"})
	if !strings.Contains(c.msg, "forbidden direct import detected (reason)") || !strings.Contains(c.msg, "a\nb") {
		t.Fatalf("unexpected message %q", c.msg)
	}
}
