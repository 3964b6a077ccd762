package services

import (
	"context"

	"github.com/adminkit/apiserver/types"
)

// IncomingRequestService records and summarises request latency.
type IncomingRequestService struct {
	store Store
}

func NewIncomingRequestService(st Store) *IncomingRequestService {
	return &IncomingRequestService{store: st}
}

func (s *IncomingRequestService) Record(ctx context.Context, req types.IncomingRequest) error {
	_, err := s.store.IncomingRequests().Create(ctx, req)
	return err
}

func (s *IncomingRequestService) Averages(ctx context.Context) ([]types.RequestAverage, error) {
	return s.store.IncomingRequests().Averages(ctx)
}
