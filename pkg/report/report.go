package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/conductorone/snowflake-list-tables/pkg/snowflake"
)

var csvHeader = []string{"table_schema", "table_name", "table_type"}

// Connecting echoes the non-secret connection settings.
func Connecting(w io.Writer, account, user, role, warehouse, database, schemaLike string) error {
	_, err := fmt.Fprintf(w, "[INFO] Connecting to Snowflake account=%s, user=%s, role=%s, wh=%s, db=%s, schema_like=%s\n",
		account, user, role, warehouse, database, schemaLike)
	return err
}

// PrintTables writes one "<schema>.<table>  (<type>)" line per table, in order.
func PrintTables(w io.Writer, tables []snowflake.Table) error {
	for _, t := range tables {
		if _, err := fmt.Fprintf(w, "%s  (%s)\n", t.FullName(), t.Type); err != nil {
			return err
		}
	}
	return nil
}

func Saved(w io.Writer, path string, count int) error {
	_, err := fmt.Fprintf(w, "[INFO] Saved: %s (%d rows)\n", path, count)
	return err
}

// WriteCSV encodes the header and one record per table. Records end in CRLF.
// Fields starting with whitespace are quoted as well; that does not change the
// decoded values.
func WriteCSV(w io.Writer, tables []snowflake.Table) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range tables {
		if err := cw.Write([]string{t.Schema, t.Name, t.Type}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates or truncates path and writes the tables to it.
func WriteCSVFile(path string, tables []snowflake.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := WriteCSV(f, tables); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
