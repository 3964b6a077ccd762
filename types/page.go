package types

// PageMeta describes the position of a page within a result set.
type PageMeta struct {
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Meta PageMeta `json:"meta"`
	Data []T      `json:"data"`
}

// NewPage computes the page metadata for total rows.
func NewPage[T any](data []T, total int64, page, limit int) Page[T] {
	if data == nil {
		data = []T{}
	}
	last := 1
	if limit > 0 && total > 0 {
		last = int((total + int64(limit) - 1) / int64(limit))
	}
	return Page[T]{
		Meta: PageMeta{Total: total, PerPage: limit, CurrentPage: page, LastPage: last},
		Data: data,
	}
}
