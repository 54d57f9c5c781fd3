package pgwire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgtype"
	wire "github.com/jeroenrinzema/psql-wire"
)

// resultSet is proxy JSON flattened into text columns.
type resultSet struct {
	columns []string
	rows    [][]any
}

// newResultSet flattens data. An array of objects becomes one row per object
// with the union of their keys as columns; a single object becomes one row;
// scalars and arrays of scalars become a single column.
func newResultSet(data json.RawMessage) (*resultSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return &resultSet{}, nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	switch t := v.(type) {
	case []any:
		if allObjects(t) {
			return objectRows(t), nil
		}
		rs := &resultSet{columns: []string{"value"}}
		for _, item := range t {
			rs.rows = append(rs.rows, []any{textValue(item)})
		}
		return rs, nil
	case map[string]any:
		return objectRows([]any{t}), nil
	default:
		return &resultSet{columns: []string{"result"}, rows: [][]any{{textValue(t)}}}, nil
	}
}

func allObjects(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func objectRows(items []any) *resultSet {
	rs := &resultSet{}
	index := make(map[string]int)
	for _, item := range items {
		keys := make([]string, 0)
		for k := range item.(map[string]any) {
			if _, ok := index[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			index[k] = len(rs.columns)
			rs.columns = append(rs.columns, k)
		}
	}

	for _, item := range items {
		obj := item.(map[string]any)
		row := make([]any, len(rs.columns))
		for k, val := range obj {
			row[index[k]] = textValue(val)
		}
		rs.rows = append(rs.rows, row)
	}
	return rs
}

// textValue renders a JSON value as column text. Null stays nil.
func textValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "t"
		}
		return "f"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func (rs *resultSet) wireColumns() wire.Columns {
	cols := make(wire.Columns, len(rs.columns))
	for i, name := range rs.columns {
		cols[i] = wire.Column{
			Table: 0,
			Name:  name,
			Oid:   pgtype.TextOID,
			Width: -1,
		}
	}
	return cols
}
