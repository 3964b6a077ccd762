package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageQueryNormalize(t *testing.T) {
	q := PageQuery{Page: 0, Limit: 1000, OrderKey: "password; DROP TABLE users", OrderDir: "sideways"}.
		Normalize("name", "email")

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, maxPageLimit, q.Limit)
	assert.Equal(t, "name", q.OrderKey)
	assert.Equal(t, "ASC", q.OrderDir)

	q = PageQuery{Page: 3, Limit: 20, OrderKey: "EMAIL", OrderDir: "desc"}.Normalize("name", "email")
	assert.Equal(t, "email", q.OrderKey)
	assert.Equal(t, "DESC", q.OrderDir)
	assert.Equal(t, 40, q.Offset())
}

func TestSoftDeletesWhere(t *testing.T) {
	assert.Equal(t, "u.deleted_at IS NULL", defaultSoftDeletes.Where("u"))
	assert.Equal(t, "deleted_at IS NULL", defaultSoftDeletes.Where(""))
	assert.Equal(t, "TRUE", SoftDeletes{Column: "deleted_at", WithTrashed: true}.Where("u"))
}
