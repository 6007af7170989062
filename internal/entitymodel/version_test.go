package entitymodel

import (
	"strings"
	"testing"

	"pharmacore/internal/entitymodel/sqlbundle"
)

func TestVersionIsStable(t *testing.T) {
	got := Version()
	if !strings.HasPrefix(got, "sha256:") || len(got) != len("sha256:")+12 {
		t.Fatalf("unexpected version %q", got)
	}
	if got != Fingerprint(sqlbundle.SQLite()) {
		t.Fatalf("version should fingerprint the sqlite bundle")
	}
	if Version() != got {
		t.Fatalf("version changed between calls")
	}
}

func TestFingerprintIgnoresLayout(t *testing.T) {
	a := "-- doctors\nCREATE TABLE doctors (\n  id TEXT PRIMARY KEY\n);\n"
	b := "CREATE TABLE doctors (id TEXT   PRIMARY KEY);"
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("layout should not change the fingerprint")
	}
	if Fingerprint(a) == Fingerprint("CREATE TABLE doctors (id INTEGER PRIMARY KEY);") {
		t.Fatalf("column changes must change the fingerprint")
	}
}
