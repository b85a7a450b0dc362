/*
 * Copyright 2024 RustyShim Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rustyshim

import (
	"errors"

	"github.com/apache/arrow/go/v17/arrow"
)

// Value stores the contents of a single cell from a query result.
type Value any

// ResultSet stores a fully drained query result.
type ResultSet struct {
	// Schema is the schema of the result set.
	Schema *arrow.Schema
	// Records are the record batches in arrival order.
	Records []arrow.Record
}

// TotalRows returns the number of rows across all batches.
func (rs *ResultSet) TotalRows() int64 {
	var n int64
	for _, rec := range rs.Records {
		n += rec.NumRows()
	}
	return n
}

// ColumnNames returns the field names of the schema.
func (rs *ResultSet) ColumnNames() []string {
	if rs.Schema == nil {
		return nil
	}
	names := make([]string, 0, rs.Schema.NumFields())
	for _, f := range rs.Schema.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// ToValues reads the result set and returns the rows as a 2D array of values,
// i.e., rows of value lists. Nulls are nil; other cells take the Go value
// Arrow uses when marshalling the column to JSON.
func (rs *ResultSet) ToValues() ([][]Value, error) {
	valueLists := make([][]Value, 0, rs.TotalRows())
	for _, rec := range rs.Records {
		if rs.Schema != nil && int(rec.NumCols()) != rs.Schema.NumFields() {
			return nil, errors.New("schema length does not match record length")
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			values := make([]Value, 0, rec.NumCols())
			for _, col := range rec.Columns() {
				if col.IsNull(i) {
					values = append(values, nil)
					continue
				}
				values = append(values, col.GetOneForMarshal(i))
			}
			valueLists = append(valueLists, values)
		}
	}
	return valueLists, nil
}

// ToStrings renders every cell with Arrow's string formatting; nulls become "(null)".
func (rs *ResultSet) ToStrings() [][]string {
	rows := make([][]string, 0, rs.TotalRows())
	for _, rec := range rs.Records {
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]string, 0, rec.NumCols())
			for _, col := range rec.Columns() {
				row = append(row, col.ValueStr(i))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Release releases the retained record batches.
func (rs *ResultSet) Release() {
	for _, rec := range rs.Records {
		rec.Release()
	}
	rs.Records = nil
}
