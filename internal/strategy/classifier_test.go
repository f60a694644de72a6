package strategy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"badewanne/internal/model"
	"badewanne/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(st store.Store) *Classifier {
	c := NewClassifier(st, zerolog.Nop())
	c.Now = func() time.Time { return fixedNow }
	return c
}

func TestReadyQualified(t *testing.T) {
	it := campaignItem("A1", model.StageNormal)
	assert.True(t, ReadyQualified(it))

	cases := map[string]func(*model.Item){
		"sales7":   func(i *model.Item) { i.Sales7 = 100 },
		"sales14":  func(i *model.Item) { i.Sales14 = 100 },
		"salesMTD": func(i *model.Item) { i.SalesMTD = 100 },
		"lrw":      func(i *model.Item) { i.LRW = 50 },
		"stock":    func(i *model.Item) { i.Stock = 150 },
		"fc":       func(i *model.Item) { i.FC = 15 },
		"rank":     func(i *model.Item) { i.Rank = 50 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := it
			mutate(&c)
			assert.False(t, ReadyQualified(c))
		})
	}
}

func TestClassifier_Scenario(t *testing.T) {
	lowLRW := campaignItem("A1", model.StageNormal)
	lowLRW.LRW = 49

	staleReady := campaignItem("A2", model.StageReady)
	staleReady.Sales7 = 100

	expired := campaignItem("A3", model.Stage2_20D)
	expired.LastStageStartAt = fixedNow.Add(-31 * 24 * time.Hour)
	expired.LastBlockEndAt = fixedNow.Add(-2 * time.Hour)

	stopped := campaignItem("A4", model.StageToBlock)
	stopped.LastBlockEndAt = fixedNow.Add(-2 * time.Hour)

	released := campaignItem("A5", model.StageBlocked)
	released.LastBlockEndAt = fixedNow.Add(-31 * 24 * time.Hour)
	released.Stock = 0

	stillBlocked := campaignItem("A6", model.StageBlocked)
	stillBlocked.LastBlockEndAt = fixedNow.Add(-10 * 24 * time.Hour)

	recovered := campaignItem("A7", model.StageLRWList)
	recovered.LRW = 51
	recovered.Stock = 0

	candidate := campaignItem("A8", model.StageNormal)

	running := campaignItem("A9", model.Stage1_30D)

	st := seed(t, lowLRW, staleReady, expired, stopped, released, stillBlocked, recovered, candidate, running)

	report, err := newTestClassifier(st).Run(context.Background())
	require.NoError(t, err)

	want := map[int64]model.Stage{
		1: model.StageLRWList,
		2: model.StageNormal,
		3: model.StageBlocked,
		4: model.StageBlocked,
		5: model.StageNormal,
		6: model.StageBlocked,
		7: model.StageNormal,
		8: model.StageReady,
		9: model.Stage1_30D,
	}
	for id, stage := range want {
		assert.Equal(t, stage, get(t, st, id).Stage, "item %d", id)
	}

	assert.Equal(t, []int64{1}, report.ToLRW)
	assert.Equal(t, []int64{3, 4}, report.ToBlocked)
	assert.Equal(t, []int64{2, 5, 7}, report.ToNormal)
	assert.Equal(t, []int64{8}, report.ToReady)
	assert.Equal(t, 7, report.Moved())

	// status-only block leaves the block timestamp alone
	assert.True(t, get(t, st, 3).LastBlockEndAt.Equal(fixedNow.Add(-2*time.Hour)))
}

func TestClassifier_BlockWithoutBlockEndFallsThrough(t *testing.T) {
	// Nothing stamps the block end in step 2, so an item that was never
	// blocked before is released by step 3 in the same run.
	it := campaignItem("A1", model.StageToBlock)
	it.Stock = 0
	st := seed(t, it)

	report, err := newTestClassifier(st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, report.ToBlocked)
	assert.Equal(t, []int64{1}, report.ToNormal)
	assert.Equal(t, model.StageNormal, get(t, st, 1).Stage)
}

func TestClassifier_LaterStepsSeeEarlierOnes(t *testing.T) {
	// Released from LRW_LIST in step 3, then promoted in step 4.
	it := campaignItem("A1", model.StageLRWList)
	st := seed(t, it)

	report, err := newTestClassifier(st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StageReady, get(t, st, 1).Stage)
	assert.Equal(t, []int64{1}, report.ToNormal)
	assert.Equal(t, []int64{1}, report.ToReady)
}

func TestClassifier_Idempotent(t *testing.T) {
	st := seed(t, campaignItem("A1", model.StageNormal), campaignItem("A2", model.Stage0))
	c := newTestClassifier(st)

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Moved())
}

func TestClassifier_LargeCatalogSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "items.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	const n = 40000
	items := make([]model.Item, n)
	for i := range items {
		items[i] = campaignItem("L", model.StageNormal)
		items[i].ItemNo = int64(i + 1)
		items[i].LRW = 10
	}
	require.NoError(t, st.Insert(ctx, items))

	report, err := newTestClassifier(st).Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.ToLRW, n)

	counts, err := st.CountByStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Stage]int{model.StageLRWList: n}, counts)
}

func TestStartStopCampaign(t *testing.T) {
	st := seed(t,
		campaignItem("A1", model.StageReady),
		campaignItem("A2", model.StageNormal),
		campaignItem("A3", model.Stage3_10D),
		campaignItem("A4", model.StageReady),
	)
	ctx := context.Background()

	moved, err := StartCampaign(ctx, st, []int64{1, 2, 3}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, moved)
	assert.Equal(t, model.Stage0, get(t, st, 1).Stage)
	assert.True(t, get(t, st, 1).LastStageStartAt.Equal(fixedNow))
	assert.Equal(t, model.StageNormal, get(t, st, 2).Stage)
	assert.Equal(t, model.StageReady, get(t, st, 4).Stage)

	moved, err = StopCampaign(ctx, st, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, moved)
	assert.Equal(t, model.StageToBlock, get(t, st, 3).Stage)

	moved, err = StartCampaign(ctx, st, nil, fixedNow)
	require.NoError(t, err)
	assert.Empty(t, moved)
	assert.Equal(t, model.StageReady, get(t, st, 4).Stage)
}
