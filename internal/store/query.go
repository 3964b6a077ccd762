package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PageQuery describes a searchable, ordered page of rows.
type PageQuery struct {
	Page     int
	Limit    int
	Search   string
	OrderKey string
	OrderDir string
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Normalize clamps paging values and whitelists ordering against allowed columns.
// The first allowed column is the default order key.
func (q PageQuery) Normalize(allowed ...string) PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}

	key := strings.ToLower(strings.TrimSpace(q.OrderKey))
	q.OrderKey = ""
	for _, column := range allowed {
		if column == key {
			q.OrderKey = column
			break
		}
	}
	if q.OrderKey == "" && len(allowed) > 0 {
		q.OrderKey = allowed[0]
	}

	if strings.EqualFold(q.OrderDir, "desc") {
		q.OrderDir = "DESC"
	} else {
		q.OrderDir = "ASC"
	}
	return q
}

// Offset returns the row offset of the page.
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

func (q PageQuery) pattern() string {
	return "%" + strings.TrimSpace(q.Search) + "%"
}

// SoftDeletes is the query filter for tables carrying a deleted_at marker.
// Repositories compose it into every read so trashed rows stay invisible.
type SoftDeletes struct {
	Column      string
	WithTrashed bool
}

var defaultSoftDeletes = SoftDeletes{Column: "deleted_at"}

// Where returns the SQL predicate for alias.
func (s SoftDeletes) Where(alias string) string {
	if s.WithTrashed {
		return "TRUE"
	}
	column := s.Column
	if alias != "" {
		column = alias + "." + column
	}
	return fmt.Sprintf("%s IS NULL", column)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
