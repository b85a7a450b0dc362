package rustyshim

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// Table is a handle to a table the server exposes as a flight.
type Table struct {
	c *Connection

	// Name is the name of the table.
	Name string
}

// Table returns a handle to the named table. No call is made.
func (c *Connection) Table(name string) *Table {
	return &Table{
		c:    c,
		Name: name,
	}
}

// Tables lists the tables the server advertises. Flights whose descriptor is
// not a single-element path are skipped.
func (c *Connection) Tables(ctx context.Context) ([]*Table, error) {
	infos, err := c.ListFlights(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(infos))
	for _, info := range infos {
		path := info.GetFlightDescriptor().GetPath()
		if len(path) != 1 {
			continue
		}
		tables = append(tables, c.Table(path[0]))
	}
	return tables, nil
}

// Schema returns the table's schema.
func (t *Table) Schema(ctx context.Context) (*arrow.Schema, error) {
	return t.c.GetSchema(ctx, t.selectAll())
}

// Query reads the whole table.
func (t *Table) Query(ctx context.Context) (*ResultSet, error) {
	return t.c.QueryAsArrowBatch(ctx, t.selectAll())
}

// Identifier returns the table name quoted as a SQL identifier.
func (t *Table) Identifier() string {
	return quoteIdent(t.Name, '"')
}

func (t *Table) selectAll() string {
	return fmt.Sprintf("SELECT * FROM %s", t.Identifier())
}

// quoteIdent quotes s with r, doubling embedded quote characters.
func quoteIdent(s string, r rune) string {
	var b bytes.Buffer
	b.WriteRune(r)
	for _, c := range s {
		if c == r {
			b.WriteRune(r)
		}
		b.WriteRune(c)
	}
	b.WriteRune(r)
	return b.String()
}
