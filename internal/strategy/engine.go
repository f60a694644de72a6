package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"badewanne/internal/calculator"
	"badewanne/internal/gateway"
	"badewanne/internal/model"
	"badewanne/internal/recorder"
	"badewanne/internal/store"

	"github.com/rs/zerolog"
)

// RunOptions restricts one progression pass.
type RunOptions struct {
	CycleID string
	// IDs restricts every phase to these items; nil means all items.
	IDs []int64
	// Thresholds overrides the engine defaults for this pass.
	Thresholds *Thresholds
}

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Phase     int
	Target    model.Stage
	Selected  int
	Succeeded []int64
	Failed    []int64
	Err       error
}

// RunReport collects the phase outcomes of one pass in order.
type RunReport struct {
	Phases []PhaseResult
}

// Moved returns the number of items that changed stage during the pass.
func (r *RunReport) Moved() int {
	n := 0
	for _, p := range r.Phases {
		n += len(p.Succeeded)
	}
	return n
}

// Errors returns the phases that failed as a whole.
func (r *RunReport) Errors() []PhaseResult {
	var out []PhaseResult
	for _, p := range r.Phases {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// Engine runs the discount progression phases against the item store and
// pushes confirmed prices through the pricing gateway.
type Engine struct {
	store      store.Store
	gateway    gateway.Submitter
	recorder   recorder.Recorder
	thresholds Thresholds
	log        zerolog.Logger

	// Timeout bounds each gateway call; expiry counts as a transport failure.
	Timeout time.Duration
	Now     func() time.Time
}

// NewEngine creates a progression engine.
func NewEngine(st store.Store, gw gateway.Submitter, rec recorder.Recorder, th Thresholds, log zerolog.Logger) *Engine {
	if rec == nil {
		rec = &recorder.NoopRecorder{}
	}
	return &Engine{
		store:      st,
		gateway:    gw,
		recorder:   rec,
		thresholds: th,
		log:        log.With().Str("component", "progression").Logger(),
		Timeout:    gateway.DefaultTimeout,
		Now:        time.Now,
	}
}

// Run executes all phases in order. A failing phase is recorded and skipped;
// the remaining phases still run. Only context cancellation stops the pass
// early and is returned as an error.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	th := e.thresholds
	if opts.Thresholds != nil {
		th = *opts.Thresholds
	}
	log := e.log.With().Str("cycle_id", opts.CycleID).Logger()

	report := &RunReport{}
	for _, p := range Phases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := e.runPhase(ctx, log, p, th, opts)
		report.Phases = append(report.Phases, res)
		if res.Err != nil && ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}

func (e *Engine) runPhase(ctx context.Context, log zerolog.Logger, p Phase, th Thresholds, opts RunOptions) PhaseResult {
	res := PhaseResult{Phase: p.Number, Target: p.Target}
	log = log.With().Int("phase", p.Number).Str("target", string(p.Target)).Logger()

	items, err := e.store.Find(ctx, p.filter(th, opts.IDs))
	if err != nil {
		res.Err = fmt.Errorf("select phase %d: %w", p.Number, err)
		log.Error().Err(err).Msg("phase selection failed")
		e.recordPhase(opts.CycleID, res)
		return res
	}
	res.Selected = len(items)
	if len(items) == 0 {
		log.Debug().Msg("no items selected")
		return res
	}

	priced, lines := PreparePricing(items, p)
	if skipped := len(items) - len(priced); skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("items with invalid pricing inputs left out of batch")
	}
	if len(lines) == 0 {
		return res
	}

	gctx, cancel := context.WithTimeout(ctx, e.Timeout)
	result, err := e.gateway.SubmitBatch(gctx, lines)
	cancel()
	if err == nil && result == nil {
		err = errors.New("empty batch result")
	}
	if err != nil {
		if !gateway.IsTransport(err) {
			err = &gateway.TransportError{Op: "submit", Err: err}
		}
		res.Err = err
		log.Error().Err(err).Int("lines", len(lines)).Msg("gateway call failed, phase not applied")
		e.recordPhase(opts.CycleID, res)
		return res
	}

	ok, failed := Partition(result, priced)
	for _, f := range failed {
		res.Failed = append(res.Failed, f.Item.ID)
		log.Warn().Int64("item", f.Item.ID).Str("listing", f.Item.AuctionID).
			Str("message", f.Message).Msg("price update rejected")
	}

	if len(ok) > 0 {
		var blockEnd time.Time
		if p.Target == model.StageBlocked {
			blockEnd = e.Now().UTC()
		}
		upd := store.PricingUpdate{Stage: p.Target, BlockEndAt: blockEnd}
		for _, pi := range ok {
			upd.Items = append(upd.Items, pi.Item)
		}
		if err := e.store.ApplyPricing(ctx, upd); err != nil {
			// The gateway has already accepted these prices; the next cycle
			// resubmits them from the unchanged store state.
			res.Err = fmt.Errorf("apply phase %d: %w", p.Number, err)
			log.Error().Err(err).Int("items", len(ok)).Msg("persisting confirmed prices failed")
			e.recordPhase(opts.CycleID, res)
			return res
		}
		for _, pi := range ok {
			res.Succeeded = append(res.Succeeded, pi.Item.ID)
		}
		e.recordPriceChanges(opts.CycleID, p, ok)
	}

	log.Info().Int("selected", res.Selected).Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Failed)).Msg("phase applied")
	e.recordPhase(opts.CycleID, res)
	return res
}

func (p Phase) filter(th Thresholds, ids []int64) store.Filter {
	f := store.Filter{Stages: p.Sources, IDs: ids}
	if p.Match != nil {
		match := p.Match
		f.Match = func(it model.Item) bool { return match(it, th) }
	}
	return f
}

// PricedItem is a selected item with its phase price applied in memory.
type PricedItem struct {
	Item     model.Item
	OldPrice float64
	Message  string
}

// PreparePricing computes the phase price for each item and builds the
// gateway lines in the same order. Items entering from BW_STAGE0 have their
// current price frozen as the campaign baseline first. The input slice is not
// modified.
func PreparePricing(items []model.Item, p Phase) ([]PricedItem, []model.PriceLine) {
	priced := make([]PricedItem, 0, len(items))
	lines := make([]model.PriceLine, 0, len(items))
	for _, it := range items {
		old := it.CurrentSalePrice
		if it.Stage == model.Stage0 {
			it.LastHumanSetPrice = it.CurrentSalePrice
		}
		if err := calculator.ValidateInputs(it.LastHumanSetPrice, it.PurchasePrice); err != nil {
			continue
		}
		price := calculator.SmartPrice(it.LastHumanSetPrice, it.PurchasePrice, p.Discount)
		it.NewPrice = price
		it.CurrentSalePrice = price

		priced = append(priced, PricedItem{Item: it, OldPrice: old})
		lines = append(lines, model.PriceLine{
			Price:     price,
			ListingID: it.AuctionID,
			SKU:       it.SKU,
			Reason:    p.Reason(),
		})
	}
	return priced, lines
}

// Partition splits priced items by the per-line gateway outcome. Failed
// entries carry the gateway message.
func Partition(result *model.BatchResult, priced []PricedItem) (ok, failed []PricedItem) {
	for i, pi := range priced {
		if result.Succeeded(i) {
			ok = append(ok, pi)
			continue
		}
		pi.Message = result.Message(i)
		failed = append(failed, pi)
	}
	return ok, failed
}

func (e *Engine) recordPhase(cycleID string, res PhaseResult) {
	evt := &recorder.PhaseEvent{
		CycleID:   cycleID,
		Phase:     res.Phase,
		Target:    string(res.Target),
		Selected:  res.Selected,
		Succeeded: len(res.Succeeded),
		Failed:    len(res.Failed),
	}
	if res.Err != nil {
		evt.Error = res.Err.Error()
	}
	if err := e.recorder.RecordPhase(evt); err != nil {
		e.log.Warn().Err(err).Msg("record phase failed")
	}
}

func (e *Engine) recordPriceChanges(cycleID string, p Phase, ok []PricedItem) {
	changes := make([]recorder.PriceChange, 0, len(ok))
	for _, pi := range ok {
		changes = append(changes, recorder.PriceChange{
			CycleID:   cycleID,
			ItemID:    pi.Item.ID,
			ListingID: pi.Item.AuctionID,
			SKU:       pi.Item.SKU,
			OldPrice:  pi.OldPrice,
			NewPrice:  pi.Item.NewPrice,
			Reason:    p.Reason(),
		})
	}
	if err := e.recorder.RecordPriceChanges(changes); err != nil {
		e.log.Warn().Err(err).Msg("record price changes failed")
	}
}
