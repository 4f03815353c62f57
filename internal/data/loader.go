package data

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/orbital-ai/orbital/internal/types"
)

// Loader is the session-scoped view over the engine. It resolves short table
// names against the session's attached datasets and its own derived tables,
// and refuses SQL touching anything else.
type Loader struct {
	engine        *Engine
	sessionID     types.SessionID
	derivedPrefix string
	datasetTables map[string]string // short name -> physical name
}

// NewLoader builds a Loader for one session. datasets are the session's
// attached datasets; their tables become visible under their short names.
func NewLoader(engine *Engine, sessionID types.SessionID, datasets []*types.Dataset) *Loader {
	tables := make(map[string]string)
	for _, ds := range datasets {
		for _, t := range ds.Tables {
			tables[t.Name] = t.PhysicalName
		}
	}
	return &Loader{
		engine:        engine,
		sessionID:     sessionID,
		derivedPrefix: DerivedTablePrefix(sessionID),
		datasetTables: tables,
	}
}

// SQLResult is the outcome of one ExecuteSQL call.
type SQLResult struct {
	Data         []map[string]any `json:"data"`
	Columns      []string         `json:"columns"`
	RowCount     int              `json:"row_count"`
	CreatedTable string           `json:"created_table,omitempty"`
	Message      string           `json:"message,omitempty"`
	Truncated    bool             `json:"truncated,omitempty"`
}

// ListDerivedTables returns the session's derived tables with metadata.
func (l *Loader) ListDerivedTables(ctx context.Context) ([]types.DerivedTable, error) {
	physNames, err := l.engine.tablesWithPrefix(ctx, l.derivedPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]types.DerivedTable, 0, len(physNames))
	for _, phys := range physNames {
		cols, err := l.engine.TableColumns(ctx, phys)
		if err != nil {
			return nil, err
		}
		count, err := l.engine.TableRowCount(ctx, phys)
		if err != nil {
			return nil, err
		}
		out = append(out, types.DerivedTable{
			Name:         strings.TrimPrefix(phys, l.derivedPrefix),
			PhysicalName: phys,
			RowCount:     count,
			Columns:      cols,
		})
	}
	return out, nil
}

// derivedNames returns the short names of the session's derived tables.
func (l *Loader) derivedNames(ctx context.Context) ([]string, error) {
	physNames, err := l.engine.tablesWithPrefix(ctx, l.derivedPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(physNames))
	for _, p := range physNames {
		names = append(names, strings.TrimPrefix(p, l.derivedPrefix))
	}
	return names, nil
}

// Resolve maps a short table name to its physical name. Derived tables win
// over dataset tables on collision, matching lookup order during SQL
// rewriting.
func (l *Loader) Resolve(ctx context.Context, table string) (string, error) {
	derived, err := l.derivedNames(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range derived {
		if d == table {
			return l.derivedPrefix + d, nil
		}
	}
	if phys, ok := l.datasetTables[table]; ok {
		return phys, nil
	}
	return "", fmt.Errorf("table %q not found: %w", table, types.ErrNotFound)
}

// ExecuteSQL runs a statement written with short table names.
//
// SELECTs return up to MaxResultRows rows (Truncated set when cut short).
// CREATE TABLE statements are rewritten so the new table lands under the
// session's derived prefix and report it via CreatedTable.
func (l *Loader) ExecuteSQL(ctx context.Context, sqlText string) (*SQLResult, error) {
	stmt := strings.TrimSpace(sqlText)
	if stmt == "" {
		return nil, fmt.Errorf("empty SQL statement")
	}

	derived, err := l.derivedNames(ctx)
	if err != nil {
		return nil, err
	}

	createdTable := ""
	upper := strings.ToUpper(stmt)
	if strings.HasPrefix(upper, "CREATE") && strings.Contains(upper, "TABLE") {
		createdTable = extractCreatedTable(stmt)
		if createdTable != "" {
			stmt = rewriteCreatedTable(stmt, createdTable, l.derivedPrefix+createdTable)
		}
	}

	if err := l.validateTableAccess(stmt, derived, createdTable); err != nil {
		return nil, err
	}

	stmt = l.rewriteShortNames(stmt, derived)

	rows, err := l.engine.db.QueryContext(ctx, stmt)
	if err != nil {
		// Statements without result sets (CREATE TABLE AS, INSERT) are
		// rejected by QueryContext on some drivers; retry as Exec.
		if createdTable != "" || !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
			if _, execErr := l.engine.db.ExecContext(ctx, stmt); execErr != nil {
				return nil, fmt.Errorf("SQL failed: %w", execErr)
			}
			return l.noResultOutcome(createdTable), nil
		}
		return nil, fmt.Errorf("SQL failed: %w", err)
	}
	defer rows.Close()

	data, cols, truncated, err := readRows(rows, MaxResultRows)
	if err != nil {
		return nil, fmt.Errorf("SQL failed: %w", err)
	}

	// A CREATE routed through Query yields an empty result set.
	if createdTable != "" {
		return l.noResultOutcome(createdTable), nil
	}

	res := &SQLResult{
		Data:      data,
		Columns:   cols,
		RowCount:  len(data),
		Truncated: truncated,
	}
	if truncated {
		res.Message = fmt.Sprintf("Result truncated to first %d rows. Use CREATE TABLE ... AS SELECT to keep the full result.", MaxResultRows)
	}
	return res, nil
}

func (l *Loader) noResultOutcome(createdTable string) *SQLResult {
	res := &SQLResult{Data: []map[string]any{}, Columns: []string{}}
	if createdTable != "" {
		res.CreatedTable = createdTable
		res.Message = fmt.Sprintf("Table '%s' created successfully", createdTable)
	} else {
		res.Message = "Statement executed"
	}
	return res
}

// GetRows reads rows from a short-named table, with limit/offset paging.
func (l *Loader) GetRows(ctx context.Context, table string, limit, offset int) ([]map[string]any, []string, error) {
	phys, err := l.Resolve(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	q := fmt.Sprintf(`SELECT * FROM %q`, phys)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", offset)
		}
	}
	rows, err := l.engine.db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("read table: %w", err)
	}
	defer rows.Close()

	data, cols, _, err := readRows(rows, 0)
	return data, cols, err
}

// RegisterRows materializes rows as a derived table, replacing any previous
// table with the same short name. Used by train_model and forecast to save
// predictions for later SQL analysis.
func (l *Loader) RegisterRows(ctx context.Context, name string, columns []types.ColumnInfo, rows [][]any) error {
	phys := l.derivedPrefix + name

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%q %s", c.Name, c.Type))
	}

	tx, err := l.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, phys)); err != nil {
		return fmt.Errorf("drop previous table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (%s)`, phys, strings.Join(colDefs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	insert := fmt.Sprintf(`INSERT INTO %q VALUES %s`, phys, placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	return tx.Commit()
}

// SchemaTable is one table's schema as reported by get_schema.
type SchemaTable struct {
	Columns  []string          `json:"columns"`
	Dtypes   map[string]string `json:"dtypes"`
	RowCount int64             `json:"row_count"`
}

// Schema describes everything visible to the session.
type Schema struct {
	Tables        map[string]SchemaTable `json:"tables"`
	DerivedTables map[string]SchemaTable `json:"derived_tables"`
}

// GetSchema returns the schema of all tables visible to the session:
// attached dataset tables plus session derived tables.
func (l *Loader) GetSchema(ctx context.Context) (*Schema, error) {
	schema := &Schema{
		Tables:        map[string]SchemaTable{},
		DerivedTables: map[string]SchemaTable{},
	}

	for short, phys := range l.datasetTables {
		st, err := l.tableSchema(ctx, phys)
		if err != nil {
			return nil, err
		}
		schema.Tables[short] = st
	}

	derived, err := l.ListDerivedTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range derived {
		st, err := l.tableSchema(ctx, d.PhysicalName)
		if err != nil {
			return nil, err
		}
		schema.DerivedTables[d.Name] = st
	}

	return schema, nil
}

func (l *Loader) tableSchema(ctx context.Context, phys string) (SchemaTable, error) {
	cols, err := l.engine.TableColumns(ctx, phys)
	if err != nil {
		return SchemaTable{}, err
	}
	count, err := l.engine.TableRowCount(ctx, phys)
	if err != nil {
		return SchemaTable{}, err
	}
	st := SchemaTable{
		Columns:  make([]string, 0, len(cols)),
		Dtypes:   make(map[string]string, len(cols)),
		RowCount: count,
	}
	for _, c := range cols {
		st.Columns = append(st.Columns, c.Name)
		st.Dtypes[c.Name] = c.Type
	}
	return st, nil
}

var (
	cteRe     = regexp.MustCompile(`(?i)(?:WITH(?:\s+RECURSIVE)?|,)\s+(\w+)\s+AS\s*\(`)
	tableRefRe = regexp.MustCompile(`(?i)(?:FROM|JOIN|INTO|UPDATE|TABLE)\s+(?:IF\s+NOT\s+EXISTS\s+)?["']?(\w+)["']?`)
)

var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "WHERE": {}, "AND": {}, "OR": {}, "ON": {}, "AS": {},
	"SET": {}, "VALUES": {}, "NULL": {}, "NOT": {}, "EXISTS": {}, "IN": {},
	"LIKE": {}, "CAST": {}, "LATERAL": {}, "UNNEST": {},
	"SQLITE_MASTER": {}, "SQLITE_SCHEMA": {},
}

// validateTableAccess rejects SQL referencing tables outside the session's
// attached datasets and its own derived tables. This is the cross-session
// isolation boundary, not a convenience check.
func (l *Loader) validateTableAccess(stmt string, derived []string, createdTable string) error {
	allowed := map[string]struct{}{}
	for short, phys := range l.datasetTables {
		allowed[short] = struct{}{}
		allowed[phys] = struct{}{}
	}
	for _, d := range derived {
		allowed[d] = struct{}{}
		allowed[l.derivedPrefix+d] = struct{}{}
	}
	if createdTable != "" {
		allowed[createdTable] = struct{}{}
		allowed[l.derivedPrefix+createdTable] = struct{}{}
	}
	for _, m := range cteRe.FindAllStringSubmatch(stmt, -1) {
		allowed[m[1]] = struct{}{}
	}

	var unauthorized []string
	for _, m := range tableRefRe.FindAllStringSubmatch(stmt, -1) {
		name := strings.Trim(m[1], `"'`)
		if _, kw := sqlKeywords[strings.ToUpper(name)]; kw {
			continue
		}
		if strings.HasPrefix(name, "_derived_") || strings.HasPrefix(name, "_dataset_") {
			// Physical prefixes outside the allowed set are still foreign.
			if _, ok := allowed[name]; !ok {
				unauthorized = append(unauthorized, name)
			}
			continue
		}
		if _, ok := allowed[name]; !ok {
			unauthorized = append(unauthorized, name)
		}
	}

	if len(unauthorized) > 0 {
		sort.Strings(unauthorized)
		return fmt.Errorf(
			"access denied to tables: %s. Only tables from attached datasets are accessible",
			strings.Join(dedupe(unauthorized), ", "),
		)
	}
	return nil
}

func dedupe(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

// rewriteShortNames replaces short derived/dataset table names with quoted
// physical names.
func (l *Loader) rewriteShortNames(stmt string, derived []string) string {
	for _, short := range derived {
		phys := l.derivedPrefix + short
		if strings.Contains(stmt, short) && !strings.Contains(stmt, phys) {
			re := regexp.MustCompile(`(?:^|[^.\w])` + regexp.QuoteMeta(short) + `(?:$|[^\w])`)
			stmt = replaceIdent(stmt, re, short, phys)
		}
	}
	for short, phys := range l.datasetTables {
		if strings.Contains(stmt, short) && !strings.Contains(stmt, phys) {
			re := regexp.MustCompile(`(?:^|[^.\w])` + regexp.QuoteMeta(short) + `(?:$|[^\w])`)
			stmt = replaceIdent(stmt, re, short, phys)
		}
	}
	return stmt
}

// replaceIdent swaps the bare identifier inside each regexp match for the
// quoted physical name, keeping the surrounding characters.
func replaceIdent(stmt string, re *regexp.Regexp, short, phys string) string {
	return re.ReplaceAllStringFunc(stmt, func(match string) string {
		return strings.Replace(match, short, fmt.Sprintf("%q", phys), 1)
	})
}

// rewriteCreatedTable swaps the table name directly after the CREATE TABLE
// prefix for the quoted physical name. Anchoring to the prefix keeps other
// occurrences of the same text (keywords, aliases, column names) intact.
func rewriteCreatedTable(stmt, short, phys string) string {
	re := regexp.MustCompile(
		`(?is)^(\s*CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?)["']?` +
			regexp.QuoteMeta(short) + `["']?`,
	)
	return re.ReplaceAllString(stmt, fmt.Sprintf("${1}%q", phys))
}

// extractCreatedTable pulls the table name out of a CREATE TABLE statement,
// handling IF NOT EXISTS and TEMP/TEMPORARY forms.
func extractCreatedTable(stmt string) string {
	parts := strings.Fields(stmt)
	for i, part := range parts {
		if !strings.EqualFold(part, "TABLE") {
			continue
		}
		rest := parts[i+1:]
		if len(rest) == 0 {
			return ""
		}
		name := trimIdent(rest[0])
		if strings.EqualFold(name, "IF") {
			// CREATE TABLE IF NOT EXISTS <name>
			if len(rest) >= 4 {
				return trimIdent(rest[3])
			}
			return ""
		}
		return name
	}
	return ""
}

func trimIdent(s string) string {
	s = strings.Trim(s, `"'`)
	return strings.TrimRight(s, "(")
}
