// Package entitymodel describes the relational pharmacy model shared by the
// SQL stores.
package entitymodel

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"pharmacore/internal/entitymodel/sqlbundle"
)

var (
	versionOnce sync.Once
	version     string
)

// Version fingerprints the canonical (SQLite) DDL. Whitespace and comment
// changes do not move it.
func Version() string {
	versionOnce.Do(func() {
		version = Fingerprint(sqlbundle.SQLite())
	})
	return version
}

// Fingerprint returns "sha256:" plus the first 12 hex digits of the hash of
// the normalised statements in ddl.
func Fingerprint(ddl string) string {
	h := sha256.New()
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		h.Write([]byte(strings.Join(strings.Fields(stmt), " ")))
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))[:12]
}
