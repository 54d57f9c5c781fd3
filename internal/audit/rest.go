package audit

import (
	"context"

	"github.com/wemarka/wmai/internal/supabase"
)

// RESTStore inserts entries into a table on the hosted database through PostgREST.
type RESTStore struct {
	client *supabase.Client
	table  string
}

// NewRESTStore creates a store writing to table (DefaultTable when empty).
func NewRESTStore(client *supabase.Client, table string) *RESTStore {
	if table == "" {
		table = DefaultTable
	}
	return &RESTStore{client: client, table: table}
}

func (s *RESTStore) Append(ctx context.Context, e *Entry) error {
	row := *e
	row.ID = 0
	return s.client.Insert(ctx, s.table, row)
}
