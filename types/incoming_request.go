package types

import "time"

// IncomingRequest is one row of the request latency log.
type IncomingRequest struct {
	ID int64 `json:"id" db:"id"`

	// Name is the matched route pattern, e.g. "/superuser/user/{id}".
	Name   string `json:"name" db:"name"`
	Method string `json:"method" db:"method"`
	Path   string `json:"path" db:"path"`
	IP     string `json:"ip" db:"ip"`

	// TimeMS is the handler latency in milliseconds.
	TimeMS float64 `json:"time" db:"time_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RequestAverage aggregates latency per route and method.
type RequestAverage struct {
	Name    string  `json:"name"`
	Method  string  `json:"method"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int64   `json:"count"`
}
