package strategy

import (
	"context"
	"fmt"
	"time"

	"badewanne/internal/model"
	"badewanne/internal/store"

	"github.com/rs/zerolog"
)

const (
	// CampaignMaxAge is how long an item may stay in one campaign stage.
	CampaignMaxAge = 30 * 24 * time.Hour
	// BlockPeriod is how long a blocked item stays out of the campaign.
	BlockPeriod = 30 * 24 * time.Hour
)

// ReadyQualified reports whether an item underperforms and is eligible for
// the campaign.
func ReadyQualified(it model.Item) bool {
	return it.Sales7 < 100 &&
		it.Sales14 < 100 &&
		it.SalesMTD < 100 &&
		it.LRW > 50 &&
		it.Stock > 150 &&
		it.FC > 15 &&
		it.Rank > 50
}

// ClassifyReport lists the items moved by each classifier step.
type ClassifyReport struct {
	ToLRW     []int64
	ToBlocked []int64
	ToNormal  []int64
	ToReady   []int64
}

// Moved returns the number of stage changes.
func (r *ClassifyReport) Moved() int {
	return len(r.ToLRW) + len(r.ToBlocked) + len(r.ToNormal) + len(r.ToReady)
}

// Classifier performs the status-only stage transitions that do not touch
// prices.
type Classifier struct {
	store store.Store
	log   zerolog.Logger
	Now   func() time.Time
}

// NewClassifier creates a classifier over st.
func NewClassifier(st store.Store, log zerolog.Logger) *Classifier {
	return &Classifier{
		store: st,
		log:   log.With().Str("component", "classifier").Logger(),
		Now:   time.Now,
	}
}

type classifyStep struct {
	name   string
	filter store.Filter
	target model.Stage
	out    *[]int64
}

// Run executes the four steps in order, each committed before the next one
// reads. The first failing step aborts the run.
func (c *Classifier) Run(ctx context.Context) (*ClassifyReport, error) {
	now := c.Now().UTC()
	staleStart := now.Add(-CampaignMaxAge)
	blockEnd := now.Add(-BlockPeriod)
	report := &ClassifyReport{}

	steps := []classifyStep{
		{
			name: "lrw_list",
			filter: store.Filter{
				Stages: []model.Stage{model.StageNormal},
				Match:  func(it model.Item) bool { return it.LRW < 50 },
			},
			target: model.StageLRWList,
			out:    &report.ToLRW,
		},
		{
			name: "block",
			filter: store.Filter{
				Match: func(it model.Item) bool {
					if it.Stage == model.StageToBlock {
						return true
					}
					return it.Stage.IsCampaign() && it.LastStageStartAt.Before(staleStart)
				},
			},
			target: model.StageBlocked,
			out:    &report.ToBlocked,
		},
		{
			name: "release",
			filter: store.Filter{
				Stages: []model.Stage{model.StageReady, model.StageBlocked, model.StageLRWList},
				Match: func(it model.Item) bool {
					switch it.Stage {
					case model.StageReady:
						return !ReadyQualified(it)
					case model.StageBlocked:
						return it.LastBlockEndAt.Before(blockEnd)
					default:
						return it.LRW > 50
					}
				},
			},
			target: model.StageNormal,
			out:    &report.ToNormal,
		},
		{
			name: "ready",
			filter: store.Filter{
				Stages: []model.Stage{model.StageNormal},
				Match:  ReadyQualified,
			},
			target: model.StageReady,
			out:    &report.ToReady,
		},
	}

	for _, s := range steps {
		items, err := c.store.Find(ctx, s.filter)
		if err != nil {
			return report, fmt.Errorf("classifier %s: %w", s.name, err)
		}
		if len(items) == 0 {
			continue
		}
		ids := model.IDs(items)
		if err := c.store.UpdateStage(ctx, store.StageUpdate{IDs: ids, Stage: s.target}); err != nil {
			return report, fmt.Errorf("classifier %s: %w", s.name, err)
		}
		*s.out = ids
		c.log.Info().Str("step", s.name).Str("target", string(s.target)).Int("items", len(ids)).Msg("stage step applied")
	}
	return report, nil
}
