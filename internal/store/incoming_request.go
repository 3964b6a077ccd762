package store

import (
	"context"
	"time"

	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/types"
)

// IncomingRequestRepository stores the request latency log.
type IncomingRequestRepository struct {
	db db.DBTX
}

func NewIncomingRequestRepository(conn db.DBTX) *IncomingRequestRepository {
	return &IncomingRequestRepository{db: conn}
}

func (r *IncomingRequestRepository) Create(ctx context.Context, req types.IncomingRequest) (types.IncomingRequest, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	const query = `
		INSERT INTO incoming_requests (name, method, path, ip, time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, req.Name, req.Method, req.Path, req.IP, req.TimeMS, req.CreatedAt).Scan(&req.ID); err != nil {
		return types.IncomingRequest{}, err
	}
	return req, nil
}

// Averages aggregates latency per route name and method, slowest first.
func (r *IncomingRequestRepository) Averages(ctx context.Context) ([]types.RequestAverage, error) {
	const query = `
		SELECT name, method, AVG(time_ms), MIN(time_ms), MAX(time_ms), COUNT(1)
		FROM incoming_requests
		GROUP BY name, method
		ORDER BY AVG(time_ms) DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	averages := []types.RequestAverage{}
	for rows.Next() {
		var avg types.RequestAverage
		if err := rows.Scan(&avg.Name, &avg.Method, &avg.Average, &avg.Min, &avg.Max, &avg.Count); err != nil {
			return nil, err
		}
		averages = append(averages, avg)
	}
	return averages, rows.Err()
}
