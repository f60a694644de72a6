package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"badewanne/internal/collector"
	"badewanne/internal/logger"
	"badewanne/internal/model"
	"badewanne/internal/notifier"
	"badewanne/internal/recorder"
	"badewanne/internal/store"
	"badewanne/internal/strategy"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrCycleInFlight is returned when a cycle is requested while another one
// holds the lock.
var ErrCycleInFlight = errors.New("evaluation cycle already in flight")

// DefaultTriggerDelay is the pause between a manual start/stop and its
// restricted progression pass.
const DefaultTriggerDelay = 5 * time.Second

// Notifier delivers cycle reports.
type Notifier interface {
	NotifyCycle(ctx context.Context, r *model.CycleReport) error
}

// Options wires the scheduler's collaborators.
type Options struct {
	Collector    *collector.Collector // nil skips ingestion
	Classifier   *strategy.Classifier
	Engine       *strategy.Engine
	Store        store.Store
	Recorder     recorder.Recorder
	Notifier     Notifier // nil disables reports
	Thresholds   strategy.Thresholds
	TriggerDelay time.Duration
}

// Scheduler runs evaluation cycles on a cron schedule and on demand. At most
// one cycle or restricted pass runs at a time.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context

	collector    *collector.Collector
	classifier   *strategy.Classifier
	engine       *strategy.Engine
	store        store.Store
	recorder     recorder.Recorder
	notifier     Notifier
	thresholds   strategy.Thresholds
	triggerDelay time.Duration

	log     zerolog.Logger
	flight  *semaphore.Weighted
	pending sync.WaitGroup
	now     func() time.Time
	newID   func() string
}

// NewScheduler creates a new Scheduler. ctx bounds every cycle it starts.
func NewScheduler(ctx context.Context, opts Options, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := logger.CronLogger{Log: log}
	rec := opts.Recorder
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	delay := opts.TriggerDelay
	if delay <= 0 {
		delay = DefaultTriggerDelay
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Ctx:          ctx,
		collector:    opts.Collector,
		classifier:   opts.Classifier,
		engine:       opts.Engine,
		store:        opts.Store,
		recorder:     rec,
		notifier:     opts.Notifier,
		thresholds:   opts.Thresholds,
		triggerDelay: delay,
		log:          log,
		flight:       semaphore.NewWeighted(1),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Register schedules the full evaluation cycle.
func (s *Scheduler) Register(cycleCron string) error {
	if _, err := s.Cron.AddFunc(cycleCron, s.scheduledCycle); err != nil {
		return fmt.Errorf("register cycle: %w", err)
	}
	s.log.Info().Str("schedule", cycleCron).Msg("cycle registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for the running cron job and pending manual passes.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.pending.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) scheduledCycle() {
	if _, err := s.RunCycle(s.Ctx, model.KindScheduled); err != nil {
		s.log.Warn().Err(err).Msg("scheduled cycle skipped")
	}
}

// RunCycle runs ingestion, the stage classifier and the discount progression
// with the configured thresholds. It returns ErrCycleInFlight without waiting
// when another cycle holds the lock. Phase failures are reported, not returned.
func (s *Scheduler) RunCycle(ctx context.Context, kind model.CycleKind) (*model.CycleReport, error) {
	if !s.flight.TryAcquire(1) {
		return nil, ErrCycleInFlight
	}
	defer s.flight.Release(1)
	return s.runCycle(ctx, s.newID(), kind), nil
}

// TriggerCycle starts a full cycle in the background and returns its id.
func (s *Scheduler) TriggerCycle(kind model.CycleKind) (string, error) {
	if !s.flight.TryAcquire(1) {
		return "", ErrCycleInFlight
	}
	id := s.newID()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer s.flight.Release(1)
		s.runCycle(s.Ctx, id, kind)
	}()
	return id, nil
}

// RunRestricted runs the discount progression over ids only, with the default
// thresholds. It waits for an in-flight cycle to finish first.
func (s *Scheduler) RunRestricted(ctx context.Context, kind model.CycleKind, ids []int64) (*model.CycleReport, error) {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for cycle lock: %w", err)
	}
	defer s.flight.Release(1)

	report := s.newReport(s.newID(), kind)
	report.IDs = ids
	log := s.cycleLog(report)
	log.Info().Int("items", len(ids)).Msg("restricted pass started")

	th := strategy.DefaultThresholds()
	s.progress(ctx, report, ids, &th)
	s.finish(ctx, log, report)
	return report, nil
}

// StartCampaign moves the BW_READY items among ids into the campaign and
// schedules a restricted pass over the moved items.
func (s *Scheduler) StartCampaign(ctx context.Context, ids []int64) ([]int64, error) {
	moved, err := strategy.StartCampaign(ctx, s.store, ids, s.now())
	if err != nil {
		return nil, fmt.Errorf("start campaign: %w", err)
	}
	s.log.Info().Int("requested", len(ids)).Int("moved", len(moved)).Msg("campaign started")
	s.schedulePass(model.KindStart, moved)
	return moved, nil
}

// StopCampaign marks the campaign items among ids for blocking and schedules
// a restricted pass over the moved items.
func (s *Scheduler) StopCampaign(ctx context.Context, ids []int64) ([]int64, error) {
	moved, err := strategy.StopCampaign(ctx, s.store, ids)
	if err != nil {
		return nil, fmt.Errorf("stop campaign: %w", err)
	}
	s.log.Info().Int("requested", len(ids)).Int("moved", len(moved)).Msg("campaign stopped")
	s.schedulePass(model.KindStop, moved)
	return moved, nil
}

// StageCounts returns the number of items per stage.
func (s *Scheduler) StageCounts(ctx context.Context) (map[model.Stage]int, error) {
	return s.store.CountByStage(ctx)
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch strings.ToLower(command) {
	case "/run":
		if _, err := s.RunCycle(ctx, model.KindManual); err != nil {
			return "A cycle is already running."
		}
		return ""
	case "/status":
		counts, err := s.StageCounts(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("count stages failed")
			return "Stage counts unavailable."
		}
		return notifier.FormatStageCounts(counts)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) schedulePass(kind model.CycleKind, ids []int64) {
	if len(ids) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		select {
		case <-s.Ctx.Done():
			return
		case <-time.After(s.triggerDelay):
		}
		if _, err := s.RunRestricted(s.Ctx, kind, ids); err != nil {
			s.log.Error().Err(err).Str("kind", string(kind)).Msg("restricted pass not run")
		}
	}()
}

func (s *Scheduler) runCycle(ctx context.Context, id string, kind model.CycleKind) *model.CycleReport {
	report := s.newReport(id, kind)
	log := s.cycleLog(report)
	log.Info().Msg("cycle started")

	if s.collector != nil {
		res, err := s.collector.Sync(ctx)
		if res != nil {
			report.Fetched = res.Fetched
			report.Inserted = res.Inserted
			report.Updated = res.Updated
			report.Skipped = len(res.Skipped)
			report.RankFrozen = res.RankFrozen
		}
		if err != nil {
			// stored metrics are still usable
			report.Errors = append(report.Errors, "ingestion: "+err.Error())
			log.Error().Err(err).Msg("ingestion failed, continuing on stored data")
		}
	}

	cls, err := s.classifier.Run(ctx)
	if cls != nil {
		report.ToLRW = len(cls.ToLRW)
		report.ToBlocked = len(cls.ToBlocked)
		report.ToNormal = len(cls.ToNormal)
		report.ToReady = len(cls.ToReady)
	}
	if err != nil {
		report.Errors = append(report.Errors, "classifier: "+err.Error())
		log.Error().Err(err).Msg("classifier failed, progression skipped")
		s.finish(ctx, log, report)
		return report
	}

	th := s.thresholds
	s.progress(ctx, report, nil, &th)
	s.finish(ctx, log, report)
	return report
}

func (s *Scheduler) progress(ctx context.Context, report *model.CycleReport, ids []int64, th *strategy.Thresholds) {
	rr, err := s.engine.Run(ctx, strategy.RunOptions{CycleID: report.CycleID, IDs: ids, Thresholds: th})
	if rr != nil {
		for _, p := range rr.Phases {
			sum := model.PhaseSummary{
				Phase:     p.Phase,
				Target:    p.Target,
				Selected:  p.Selected,
				Succeeded: len(p.Succeeded),
				Failed:    len(p.Failed),
			}
			if p.Err != nil {
				sum.Error = p.Err.Error()
				report.Errors = append(report.Errors, fmt.Sprintf("phase %d: %v", p.Phase, p.Err))
			}
			report.Phases = append(report.Phases, sum)
		}
	}
	if err != nil {
		report.Errors = append(report.Errors, "progression: "+err.Error())
	}
}

func (s *Scheduler) newReport(id string, kind model.CycleKind) *model.CycleReport {
	return &model.CycleReport{CycleID: id, Kind: kind, StartedAt: s.now().UTC()}
}

func (s *Scheduler) cycleLog(r *model.CycleReport) zerolog.Logger {
	return s.log.With().Str("cycle_id", r.CycleID).Str("kind", string(r.Kind)).Logger()
}

func (s *Scheduler) finish(ctx context.Context, log zerolog.Logger, r *model.CycleReport) {
	r.FinishedAt = s.now().UTC()

	ev := log.Info()
	if len(r.Errors) > 0 {
		ev = log.Warn().Strs("errors", r.Errors)
	}
	ev.Int("classified", r.Classified()).Int("repriced", r.Repriced()).
		Dur("took", r.FinishedAt.Sub(r.StartedAt)).Msg("cycle finished")

	if err := s.recorder.RecordCycle(&recorder.CycleEvent{
		CycleID:    r.CycleID,
		Kind:       string(r.Kind),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Inserted:   r.Inserted,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		Classified: r.Classified(),
		Note:       strings.Join(r.Errors, "; "),
	}); err != nil {
		log.Error().Err(err).Msg("record cycle failed")
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyCycle(ctx, r); err != nil {
			log.Error().Err(err).Msg("send cycle report failed")
		}
	}
}
