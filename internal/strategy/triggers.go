package strategy

import (
	"context"
	"fmt"
	"time"

	"badewanne/internal/model"
	"badewanne/internal/store"
)

// StartCampaign moves the given BW_READY items into BW_STAGE0 and stamps the
// stage start. Items in any other stage are ignored. It returns the moved ids.
func StartCampaign(ctx context.Context, st store.Store, ids []int64, now time.Time) ([]int64, error) {
	return moveStage(ctx, st, store.Filter{
		Stages: []model.Stage{model.StageReady},
		IDs:    nonNil(ids),
	}, store.StageUpdate{Stage: model.Stage0, StageStartAt: now.UTC()})
}

// StopCampaign moves the given BW_STAGE* items to BW_TOBLOCK. It returns the
// moved ids.
func StopCampaign(ctx context.Context, st store.Store, ids []int64) ([]int64, error) {
	return moveStage(ctx, st, store.Filter{
		Stages: model.CampaignStages,
		IDs:    nonNil(ids),
	}, store.StageUpdate{Stage: model.StageToBlock})
}

func moveStage(ctx context.Context, st store.Store, f store.Filter, u store.StageUpdate) ([]int64, error) {
	items, err := st.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	u.IDs = model.IDs(items)
	if err := st.UpdateStage(ctx, u); err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	return u.IDs, nil
}

// nonNil keeps an explicit selection from widening to every item.
func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
