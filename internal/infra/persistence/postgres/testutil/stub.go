// Package testutil provides a stub database/sql driver for postgres store
// tests. It understands the narrow statement shapes the relational store
// issues: single-table SELECTs with equality predicates, INSERTs (with
// RETURNING id and ON CONFLICT upserts), and DELETEs.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StubConn records statements issued by the postgres store during tests.
type StubConn struct {
	Execs      []string
	Queries    []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
	FailTables map[string]bool
	// ExecErr, when set, is returned by every INSERT/UPDATE/DELETE.
	ExecErr error

	nextID int64
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	if c.ExecErr != nil && !strings.HasPrefix(upper, "CREATE") {
		return nil, c.ExecErr
	}
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		if _, err := c.insert(query, args); err != nil {
			return nil, err
		}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		n, err := c.delete(query, args)
		if err != nil {
			return nil, err
		}
		return driver.RowsAffected(n), nil
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.Queries = append(c.Queries, query)
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO") {
		if c.ExecErr != nil {
			return nil, c.ExecErr
		}
		id, err := c.insert(query, args)
		if err != nil {
			return nil, err
		}
		return &stubRows{cols: []string{"id"}, rows: [][]driver.Value{{id}}}, nil
	}
	sel, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables != nil && c.FailTables[sel.table] {
		return nil, fmt.Errorf("query fail for %s", sel.table)
	}
	matched := filterRows(c.Tables[sel.table], sel.where, args)
	if sel.count {
		return &stubRows{cols: []string{"count"}, rows: [][]driver.Value{{int64(len(matched))}}, err: c.RowsErr}, nil
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values, err: c.RowsErr}, nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (int64, error) {
	table, cols, conflict, err := parseInsert(query)
	if err != nil {
		return 0, err
	}
	if c.FailTables != nil && c.FailTables[table] {
		return 0, fmt.Errorf("exec fail for %s", table)
	}
	if len(cols) != len(args) {
		return 0, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = args[i].Value
	}
	var id int64
	if strings.Contains(strings.ToUpper(query), "RETURNING ID") {
		c.nextID++
		id = c.nextID
		row["id"] = id
	}
	if len(conflict) > 0 {
		kept := c.Tables[table][:0:0]
		for _, existing := range c.Tables[table] {
			if sameKey(existing, row, conflict) {
				continue
			}
			kept = append(kept, existing)
		}
		c.Tables[table] = kept
	}
	c.Tables[table] = append(c.Tables[table], row)
	return id, nil
}

func (c *StubConn) delete(query string, args []driver.NamedValue) (int64, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	rest := strings.TrimSpace(lower[len("delete from "):])
	table, where := rest, ""
	if idx := strings.Index(rest, " where "); idx >= 0 {
		table, where = rest[:idx], rest[idx+len(" where "):]
	}
	table = strings.TrimSpace(table)
	preds := parsePredicates(where)
	var kept []map[string]any
	var removed int64
	for _, row := range c.Tables[table] {
		if matches(row, preds, args) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return removed, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type predicate struct {
	col    string
	negate bool
}

type selectStmt struct {
	table string
	cols  []string
	count bool
	where []predicate
}

func parseSelect(query string) (selectStmt, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	var stmt selectStmt
	colsRaw := strings.TrimSpace(lower[len("select "):fromIdx])
	if colsRaw == "count(*)" {
		stmt.count = true
	} else {
		stmt.cols = splitColumns(colsRaw)
	}
	rest := lower[fromIdx+len(" from "):]
	if idx := strings.Index(rest, " order by "); idx >= 0 {
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, " where "); idx >= 0 {
		stmt.where = parsePredicates(rest[idx+len(" where "):])
		rest = rest[:idx]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	stmt.table = fields[0]
	return stmt, nil
}

// parsePredicates reads "a = $1 AND b <> $2" style conjunctions. Placeholders
// bind positionally.
func parsePredicates(where string) []predicate {
	where = strings.TrimSpace(where)
	if where == "" {
		return nil
	}
	var preds []predicate
	for _, part := range strings.Split(where, " and ") {
		if col, _, ok := strings.Cut(part, "<>"); ok {
			preds = append(preds, predicate{col: strings.TrimSpace(col), negate: true})
			continue
		}
		if col, _, ok := strings.Cut(part, "="); ok {
			preds = append(preds, predicate{col: strings.TrimSpace(col)})
		}
	}
	return preds
}

func filterRows(rows []map[string]any, preds []predicate, args []driver.NamedValue) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		if matches(row, preds, args) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) bool {
	for i, p := range preds {
		if i >= len(args) {
			return false
		}
		equal := row[p.col] == args[i].Value
		if equal == p.negate {
			return false
		}
	}
	return true
}

func sameKey(a, b map[string]any, cols []string) bool {
	for _, col := range cols {
		if a[col] != b[col] {
			return false
		}
	}
	return true
}

func parseInsert(query string) (string, []string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	var conflict []string
	if idx := strings.Index(up, "ON CONFLICT ("); idx >= 0 {
		tail := query[idx+len("ON CONFLICT ("):]
		if end := strings.Index(tail, ")"); end >= 0 {
			conflict = splitColumns(tail[:end])
		}
	}
	return table, cols, conflict, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
