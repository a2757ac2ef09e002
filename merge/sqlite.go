package merge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// WriteSQLite stores the merged rows in table "merged" and the per-source
// counts in table "distribution". The database is built in a temporary file
// and renamed over path.
func WriteSQLite(path string, d *Dataset, originalTextColumn string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := writeSQLiteFile(tmp, d, originalTextColumn); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename sqlite: %w", err)
	}
	return nil
}

func writeSQLiteFile(path string, d *Dataset, originalTextColumn string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertTable(tx, "merged", d.Table(originalTextColumn), nil); err != nil {
		return fmt.Errorf("write merged table: %w", err)
	}
	counts := map[string]bool{"total": true}
	for _, label := range CanonicalLabels {
		counts[label] = true
	}
	if err := insertTable(tx, "distribution", d.DistributionTable(), counts); err != nil {
		return fmt.Errorf("write distribution table: %w", err)
	}
	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_merged_source ON merged(source)`,
		`CREATE INDEX IF NOT EXISTS idx_merged_label ON merged(label)`,
	} {
		if _, err := tx.Exec(idx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// insertTable creates name from t's header and inserts every row. Columns in
// integer are declared INTEGER, all others TEXT.
func insertTable(tx *sql.Tx, name string, t *RawTable, integer map[string]bool) error {
	var defs, quoted []string
	for _, c := range t.Columns {
		typ := "TEXT"
		if integer[c] {
			typ = "INTEGER"
		}
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c), typ))
		quoted = append(quoted, quoteIdent(c))
	}
	if _, err := tx.Exec(`DROP TABLE IF EXISTS ` + quoteIdent(name)); err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE TABLE ` + quoteIdent(name) + ` (` + strings.Join(defs, ",") + `)`); err != nil {
		return err
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(t.Columns)), ",")
	stmt, err := tx.Prepare(`INSERT INTO ` + quoteIdent(name) + ` (` + strings.Join(quoted, ",") + `) VALUES (` + ph + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := range t.Rows {
		args := make([]any, len(t.Columns))
		for c := range t.Columns {
			args[c] = t.Value(i, c)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
