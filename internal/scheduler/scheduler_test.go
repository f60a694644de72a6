package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"badewanne/internal/collector"
	"badewanne/internal/model"
	"badewanne/internal/notifier"
	"badewanne/internal/recorder"
	"badewanne/internal/store"
	"badewanne/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeGateway) SubmitBatch(_ context.Context, _ []model.PriceLine) (*model.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &model.BatchResult{}, nil
}

func (f *fakeGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyCycle(_ context.Context, r *model.CycleReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, notifier.FormatCycleReport(r))
	return nil
}

func (f *fakeNotifier) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type cycleRecorder struct {
	recorder.NoopRecorder
	mu     sync.Mutex
	cycles []recorder.CycleEvent
}

func (c *cycleRecorder) RecordCycle(evt *recorder.CycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles = append(c.cycles, *evt)
	return nil
}

type failingStageStore struct {
	*store.MemoryStore
}

func (f failingStageStore) UpdateStage(context.Context, store.StageUpdate) error {
	return errors.New("disk full")
}

type fixture struct {
	sched *Scheduler
	store store.Store
	gw    *fakeGateway
	note  *fakeNotifier
	rec   *cycleRecorder
}

func newFixture(t *testing.T, st store.Store, src collector.Source, th strategy.Thresholds) *fixture {
	t.Helper()
	log := zerolog.Nop()
	gw := &fakeGateway{}
	rec := &cycleRecorder{}
	note := &fakeNotifier{}

	cls := strategy.NewClassifier(st, log)
	cls.Now = func() time.Time { return fixedNow }
	eng := strategy.NewEngine(st, gw, rec, th, log)
	eng.Now = func() time.Time { return fixedNow }

	opts := Options{
		Classifier:   cls,
		Engine:       eng,
		Store:        st,
		Recorder:     rec,
		Notifier:     note,
		Thresholds:   th,
		TriggerDelay: 10 * time.Millisecond,
	}
	if src != nil {
		opts.Collector = collector.NewCollector(src, st, log)
	}
	s := NewScheduler(context.Background(), opts, log)
	s.now = func() time.Time { return fixedNow }
	return &fixture{sched: s, store: st, gw: gw, note: note, rec: rec}
}

func item(auction string, stage model.Stage) model.Item {
	return model.Item{
		ItemNo:           1000,
		AuctionID:        auction,
		SKU:              "SKU-" + auction,
		Sales7:           10,
		Sales14:          10,
		SalesMTD:         10,
		CogsRatio:        10,
		Rank:             80,
		LRW:              60,
		Stock:            200,
		FC:               20,
		PurchasePrice:    59.99,
		CurrentSalePrice: 119,
		Stage:            stage,
		LastStageStartAt: fixedNow.Add(-24 * time.Hour),
	}
}

func seeded(t *testing.T, items ...model.Item) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Insert(context.Background(), items))
	return st
}

func stageOf(t *testing.T, st store.Store, id int64) model.Stage {
	t.Helper()
	it, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	return it.Stage
}

func TestRunCycle_FullPipeline(t *testing.T) {
	st := seeded(t, item("A1", model.Stage0))
	src := &collector.StaticSource{Rows: []model.FeedRow{{
		ItemNo: 2000, AuctionID: "B1", SKU: "SKU-B1", Sales7: 10, Sales14: 10, SalesMTD: 10,
		Rank: 80, LRW: 60, Stock: 200, FC: 20, PurchasePrice: 10, CurrentSalePrice: 24.99,
	}}}
	f := newFixture(t, st, src, strategy.DefaultThresholds())

	report, err := f.sched.RunCycle(context.Background(), model.KindScheduled)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.ToReady)
	assert.Equal(t, 1, report.Repriced())
	assert.Empty(t, report.Errors)
	require.Len(t, report.Phases, 7)

	assert.Equal(t, model.Stage1_30D, stageOf(t, st, 1))
	assert.Equal(t, model.StageReady, stageOf(t, st, 2))

	require.Len(t, f.rec.cycles, 1)
	assert.Equal(t, report.CycleID, f.rec.cycles[0].CycleID)
	assert.Equal(t, "SCHEDULED", f.rec.cycles[0].Kind)
	assert.Equal(t, 1, f.rec.cycles[0].Classified)
	require.Len(t, f.note.Messages(), 1)
	assert.Contains(t, f.note.Messages()[0], report.CycleID)
}

func TestRunCycle_SingleFlight(t *testing.T) {
	f := newFixture(t, seeded(t), nil, strategy.DefaultThresholds())
	require.True(t, f.sched.flight.TryAcquire(1))

	_, err := f.sched.RunCycle(context.Background(), model.KindManual)
	assert.ErrorIs(t, err, ErrCycleInFlight)
	_, err = f.sched.TriggerCycle(model.KindManual)
	assert.ErrorIs(t, err, ErrCycleInFlight)
	assert.Equal(t, "A cycle is already running.", f.sched.HandleCommand(context.Background(), "/run"))

	f.sched.flight.Release(1)
	_, err = f.sched.RunCycle(context.Background(), model.KindManual)
	assert.NoError(t, err)
}

func TestRunRestricted_WaitsForLock(t *testing.T) {
	st := seeded(t, item("A1", model.Stage0))
	f := newFixture(t, st, nil, strategy.DefaultThresholds())
	require.True(t, f.sched.flight.TryAcquire(1))

	done := make(chan *model.CycleReport)
	go func() {
		r, err := f.sched.RunRestricted(context.Background(), model.KindStart, []int64{1})
		assert.NoError(t, err)
		done <- r
	}()

	select {
	case <-done:
		t.Fatal("restricted pass ran while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, f.gw.Calls())

	f.sched.flight.Release(1)
	select {
	case r := <-done:
		assert.Equal(t, []int64{1}, r.IDs)
		assert.Equal(t, 1, r.Repriced())
	case <-time.After(5 * time.Second):
		t.Fatal("restricted pass did not run")
	}
}

func TestRunRestricted_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, seeded(t), nil, strategy.DefaultThresholds())
	require.True(t, f.sched.flight.TryAcquire(1))
	defer f.sched.flight.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.sched.RunRestricted(ctx, model.KindStop, []int64{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartCampaign_SchedulesRestrictedPass(t *testing.T) {
	ready := item("A1", model.StageReady)
	ready.Sales7 = 95
	other := item("A2", model.Stage0)
	st := seeded(t, ready, other, item("A3", model.StageNormal))
	f := newFixture(t, st, nil, strategy.Thresholds{First: 99, Second: 100, Last: 90})

	moved, err := f.sched.StartCampaign(context.Background(), []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, moved)
	assert.Equal(t, model.Stage0, stageOf(t, st, 1))

	f.sched.pending.Wait()

	// manual passes use the default thresholds: sales7 95 > 90
	assert.Equal(t, model.Stage2_20D, stageOf(t, st, 1))
	// outside the restriction
	assert.Equal(t, model.Stage0, stageOf(t, st, 2))
	assert.Equal(t, model.StageNormal, stageOf(t, st, 3))

	msgs := f.note.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Badewanne start")
}

func TestRunCycle_UsesConfiguredThresholds(t *testing.T) {
	it := item("A1", model.Stage0)
	it.Sales7 = 95
	st := seeded(t, it)
	f := newFixture(t, st, nil, strategy.Thresholds{First: 99, Second: 100, Last: 90})

	_, err := f.sched.RunCycle(context.Background(), model.KindScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.Stage1_30D, stageOf(t, st, 1))
}

func TestStopCampaign_BlocksAfterPass(t *testing.T) {
	st := seeded(t, item("A1", model.Stage2_20D), item("A2", model.StageReady))
	f := newFixture(t, st, nil, strategy.DefaultThresholds())

	moved, err := f.sched.StopCampaign(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, moved)
	assert.Equal(t, model.StageToBlock, stageOf(t, st, 1))

	f.sched.pending.Wait()
	got, err := st.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StageBlocked, got.Stage)
	assert.True(t, got.LastBlockEndAt.Equal(fixedNow))
	assert.Equal(t, model.StageReady, stageOf(t, st, 2))
}

func TestStartCampaign_NothingMovedSchedulesNothing(t *testing.T) {
	st := seeded(t, item("A1", model.StageNormal))
	f := newFixture(t, st, nil, strategy.DefaultThresholds())

	moved, err := f.sched.StartCampaign(context.Background(), []int64{1, 99})
	require.NoError(t, err)
	assert.Empty(t, moved)
	f.sched.pending.Wait()
	assert.Empty(t, f.note.Messages())
	assert.Zero(t, f.gw.Calls())
}

func TestRunCycle_IngestionFailureContinues(t *testing.T) {
	st := seeded(t, item("A1", model.Stage0))
	f := newFixture(t, st, &collector.StaticSource{Err: errors.New("feed down")}, strategy.DefaultThresholds())

	report, err := f.sched.RunCycle(context.Background(), model.KindScheduled)
	require.NoError(t, err)
	require.NotEmpty(t, report.Errors)
	assert.True(t, strings.HasPrefix(report.Errors[0], "ingestion:"))
	assert.Equal(t, model.Stage1_30D, stageOf(t, st, 1))
}

func TestRunCycle_ClassifierFailureSkipsProgression(t *testing.T) {
	mem := seeded(t, item("A1", model.Stage0), item("A2", model.StageNormal))
	st := failingStageStore{mem}
	f := newFixture(t, st, nil, strategy.DefaultThresholds())

	report, err := f.sched.RunCycle(context.Background(), model.KindScheduled)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "disk full")
	assert.Empty(t, report.Phases)
	assert.Zero(t, f.gw.Calls())
	assert.Equal(t, model.Stage0, stageOf(t, st, 1))
	assert.Contains(t, f.rec.cycles[0].Note, "disk full")
}

func TestTriggerCycle_RunsInBackground(t *testing.T) {
	st := seeded(t, item("A1", model.Stage0))
	f := newFixture(t, st, nil, strategy.DefaultThresholds())

	id, err := f.sched.TriggerCycle(model.KindManual)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	f.sched.pending.Wait()

	assert.Equal(t, model.Stage1_30D, stageOf(t, st, 1))
	require.Len(t, f.rec.cycles, 1)
	assert.Equal(t, id, f.rec.cycles[0].CycleID)
}

func TestHandleCommand(t *testing.T) {
	st := seeded(t, item("A1", model.Stage0), item("A2", model.StageNormal), item("A3", model.StageNormal))
	f := newFixture(t, st, nil, strategy.DefaultThresholds())
	ctx := context.Background()

	status := f.sched.HandleCommand(ctx, "/status")
	assert.Contains(t, status, "NORMAL: 2")
	assert.Contains(t, status, "BW_STAGE0: 1")

	assert.Contains(t, f.sched.HandleCommand(ctx, "hello"), "/run")

	assert.Empty(t, f.sched.HandleCommand(ctx, "/RUN"))
	assert.Len(t, f.note.Messages(), 1)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, seeded(t), nil, strategy.DefaultThresholds())
	assert.NoError(t, f.sched.Register("0 0 6 * * *"))
	assert.Len(t, f.sched.Cron.Entries(), 1)
	assert.Error(t, f.sched.Register("not a schedule"))
}
