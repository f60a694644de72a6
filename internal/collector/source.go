package collector

import (
	"context"

	"badewanne/internal/model"
)

// Source provides the latest metrics snapshot.
type Source interface {
	Fetch(ctx context.Context) ([]model.FeedRow, error)
	Name() string
}

// StaticSource returns a fixed snapshot, for development and testing.
type StaticSource struct {
	Rows []model.FeedRow
	Err  error
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(_ context.Context) ([]model.FeedRow, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.FeedRow, len(s.Rows))
	copy(out, s.Rows)
	return out, nil
}
