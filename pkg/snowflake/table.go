package snowflake

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// ListTablesQuery lists tables and views of one catalog whose schema matches a LIKE pattern.
const ListTablesQuery = `select table_schema, table_name, table_type
from information_schema.tables
where table_catalog = ?
  and table_schema like ?
order by 1, 2`

var tableStructFieldToColumnMap = map[string]string{
	"Schema": "table_schema",
	"Name":   "table_name",
	"Type":   "table_type",
}

type (
	Table struct {
		Schema string
		Name   string
		Type   string
	}

	ListTablesRawResponse struct {
		StatementsApiResponseBase
	}
)

func (t *Table) GetColumnName(fieldName string) string {
	return tableStructFieldToColumnMap[fieldName]
}

// FullName returns schema.table.
func (t Table) FullName() string {
	return t.Schema + "." + t.Name
}

func (r *ListTablesRawResponse) ListTables() ([]Table, error) {
	return r.parseTables(r.Data)
}

func (r *ListTablesRawResponse) parseTables(data [][]string) ([]Table, error) {
	tables := make([]Table, 0, len(data))
	for _, row := range data {
		table := &Table{}
		if err := r.ResultSetMetadata.ParseRow(table, row); err != nil {
			return nil, err
		}

		tables = append(tables, *table)
	}
	return tables, nil
}

// ListTables runs ListTablesQuery through the SQL API. Every result partition is
// fetched before returning.
func (c *Client) ListTables(ctx context.Context, database, schemaLike string) ([]Table, error) {
	l := ctxzap.Extract(ctx)

	var response ListTablesRawResponse
	err := c.ExecuteStatement(ctx, ListTablesQuery, []QueryParameter{
		TextParameter(database),
		TextParameter(schemaLike),
	}, &response.StatementsApiResponseBase)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables, err := response.ListTables()
	if err != nil {
		return nil, err
	}

	for partition := 1; partition < len(response.ResultSetMetadata.PartitionInfo); partition++ {
		var page StatementsApiResponseBase
		if err := c.GetStatementPartition(ctx, response.StatementHandle, partition, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch partition %d: %w", partition, err)
		}

		more, err := response.parseTables(page.Data)
		if err != nil {
			return nil, err
		}
		tables = append(tables, more...)
	}

	l.Debug("listed tables",
		zap.String("statement_handle", response.StatementHandle),
		zap.Int("partitions", len(response.ResultSetMetadata.PartitionInfo)),
		zap.Int("count", len(tables)),
	)

	return tables, nil
}

// ListTables runs ListTablesQuery on the driver session. The cursor is closed
// before returning on every path.
func (s *Session) ListTables(ctx context.Context, database, schemaLike string) ([]Table, error) {
	l := ctxzap.Extract(ctx)

	rows, err := s.db.QueryContext(ctx, ListTablesQuery, database, schemaLike)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var (
			table  Table
			schema sql.NullString
			name   sql.NullString
			kind   sql.NullString
		)
		if err := rows.Scan(&schema, &name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		table.Schema, table.Name, table.Type = schema.String, name.String, kind.String
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table rows: %w", err)
	}

	l.Debug("listed tables", zap.Int("count", len(tables)))

	return tables, nil
}
