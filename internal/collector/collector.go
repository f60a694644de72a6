package collector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"badewanne/internal/calculator"
	"badewanne/internal/model"
	"badewanne/internal/store"

	"github.com/rs/zerolog"
)

var (
	// ErrAmbiguousMatch means a feed key matches more than one stored item.
	ErrAmbiguousMatch = errors.New("ambiguous item match")
	// ErrMarginFloor means the reported sale price is below the margin floor.
	ErrMarginFloor = errors.New("sale price below margin floor")
	// ErrInvalidRow means the row lacks its identity or carries non-finite prices.
	ErrInvalidRow = errors.New("invalid feed row")
)

// SkippedRow is a feed row left out of the sync.
type SkippedRow struct {
	Key model.Key
	Err error
}

// SyncResult summarises one ingestion run.
type SyncResult struct {
	Fetched    int
	Inserted   int
	Updated    int
	Skipped    []SkippedRow
	RankFrozen bool // every row reported the unranked sentinel
}

// Collector merges the metrics snapshot into the item store.
type Collector struct {
	Source Source
	Store  store.Store
	log    zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(src Source, st store.Store, log zerolog.Logger) *Collector {
	return &Collector{
		Source: src,
		Store:  st,
		log:    log.With().Str("component", "collector").Str("source", src.Name()).Logger(),
	}
}

// Sync fetches the snapshot and inserts new listings or refreshes the metrics
// of known ones. Stage, campaign prices and timestamps of known listings are
// never touched. Rows that cannot be matched unambiguously or that violate the
// margin floor are skipped and reported.
func (c *Collector) Sync(ctx context.Context) (*SyncResult, error) {
	rows, err := c.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	res := &SyncResult{Fetched: len(rows)}
	if len(rows) == 0 {
		c.log.Warn().Msg("empty snapshot")
		return res, nil
	}
	res.RankFrozen = allUnranked(rows)
	if res.RankFrozen {
		c.log.Warn().Int("rows", len(rows)).Msg("snapshot reports no ranking, keeping stored ranks")
	}

	index, err := c.Store.KeyIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load key index: %w", err)
	}

	repeats := make(map[model.Key]int, len(rows))
	for _, row := range rows {
		repeats[row.Key()]++
	}

	var inserts, updates []model.Item
	for _, row := range rows {
		key := row.Key()
		if err := checkRow(row); err != nil {
			res.Skipped = append(res.Skipped, SkippedRow{Key: key, Err: err})
			continue
		}
		ids := index[key]
		switch {
		case repeats[key] > 1:
			res.Skipped = append(res.Skipped, SkippedRow{
				Key: key,
				Err: fmt.Errorf("%w: key appears %d times in snapshot", ErrAmbiguousMatch, repeats[key]),
			})
			continue
		case len(ids) > 1:
			res.Skipped = append(res.Skipped, SkippedRow{
				Key: key,
				Err: fmt.Errorf("%w: %d stored items", ErrAmbiguousMatch, len(ids)),
			})
			continue
		}

		it := row.Item()
		if len(ids) == 0 {
			it.LastHumanSetPrice = row.CurrentSalePrice
			it.NewPrice = row.CurrentSalePrice
			inserts = append(inserts, it)
			continue
		}
		it.ID = ids[0]
		updates = append(updates, it)
	}

	for _, s := range res.Skipped {
		c.log.Warn().Err(s.Err).Int64("item_no", s.Key.ItemNo).Str("auction_id", s.Key.AuctionID).
			Msg("feed row skipped")
	}

	if len(inserts) > 0 {
		if err := c.Store.Insert(ctx, inserts); err != nil {
			return res, fmt.Errorf("insert items: %w", err)
		}
		res.Inserted = len(inserts)
	}
	if len(updates) > 0 {
		if err := c.Store.UpdateMetrics(ctx, updates, !res.RankFrozen); err != nil {
			return res, fmt.Errorf("update items: %w", err)
		}
		res.Updated = len(updates)
	}

	c.log.Info().Int("fetched", res.Fetched).Int("inserted", res.Inserted).
		Int("updated", res.Updated).Int("skipped", len(res.Skipped)).Msg("snapshot synced")
	return res, nil
}

const priceEpsilon = 1e-6

func allUnranked(rows []model.FeedRow) bool {
	for _, r := range rows {
		if r.Rank != model.UnrankedRank {
			return false
		}
	}
	return true
}

func checkRow(r model.FeedRow) error {
	if r.AuctionID == "" {
		return fmt.Errorf("%w: missing auction id", ErrInvalidRow)
	}
	for _, v := range []float64{r.PurchasePrice, r.CurrentSalePrice, r.SuggestedSalePrice} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite price", ErrInvalidRow)
		}
	}
	if low := calculator.LowestPrice(r.PurchasePrice); r.CurrentSalePrice < low-priceEpsilon {
		return fmt.Errorf("%w: %.2f < %.2f", ErrMarginFloor, r.CurrentSalePrice, low)
	}
	return nil
}
