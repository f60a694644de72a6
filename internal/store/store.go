package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"badewanne/internal/model"
)

// ErrNotFound is returned when a requested item id does not exist.
var ErrNotFound = errors.New("item not found")

// Filter selects items. Stages and IDs narrow the candidate set, Match is
// evaluated on each remaining candidate.
type Filter struct {
	Stages []model.Stage // empty means any stage
	IDs    []int64       // nil means every item; a non-nil empty slice matches nothing
	Match  func(model.Item) bool
}

// StageUpdate moves items to Stage. Zero timestamps are left unchanged.
type StageUpdate struct {
	IDs          []int64
	Stage        model.Stage
	StageStartAt time.Time
	BlockEndAt   time.Time
}

// PricingUpdate persists the outcome of one progression phase for the given
// items: Stage, CurrentSalePrice, LastHumanSetPrice and NewPrice. BlockEndAt is
// written when non-zero.
type PricingUpdate struct {
	Items      []model.Item
	Stage      model.Stage
	BlockEndAt time.Time
}

// Store is the item store used by the classifier, the progression engine and
// ingestion. Every write method is one atomic bulk write.
type Store interface {
	Find(ctx context.Context, f Filter) ([]model.Item, error)
	Get(ctx context.Context, id int64) (model.Item, error)
	UpdateStage(ctx context.Context, u StageUpdate) error
	ApplyPricing(ctx context.Context, u PricingUpdate) error

	// KeyIndex maps every feed key to the ids stored under it.
	KeyIndex(ctx context.Context) (map[model.Key][]int64, error)
	Insert(ctx context.Context, items []model.Item) error
	// UpdateMetrics overwrites the ingestion-owned fields of existing items.
	UpdateMetrics(ctx context.Context, items []model.Item, withRank bool) error

	CountByStage(ctx context.Context) (map[model.Stage]int, error)
	Close() error
}

// matcher compiles the filter; the id set is built once per query.
func (f Filter) matcher() func(model.Item) bool {
	var ids map[int64]struct{}
	if f.IDs != nil {
		ids = make(map[int64]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = struct{}{}
		}
	}
	return func(it model.Item) bool {
		if len(f.Stages) > 0 && !containsStage(f.Stages, it.Stage) {
			return false
		}
		if ids != nil {
			if _, ok := ids[it.ID]; !ok {
				return false
			}
		}
		return f.Match == nil || f.Match(it)
	}
}

func containsStage(stages []model.Stage, s model.Stage) bool {
	for _, v := range stages {
		if v == s {
			return true
		}
	}
	return false
}

func sortByID(items []model.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}

// copyMetrics copies the ingestion-owned fields from src to dst.
func copyMetrics(dst *model.Item, src model.Item, withRank bool) {
	dst.ItemID = src.ItemID
	dst.SKU = src.SKU
	dst.Description = src.Description
	dst.Channel = src.Channel
	dst.Country = src.Country
	dst.Sales7 = src.Sales7
	dst.Sales14 = src.Sales14
	dst.SalesMTD = src.SalesMTD
	dst.CogsRatio = src.CogsRatio
	dst.Stock = src.Stock
	dst.LRW = src.LRW
	dst.FC = src.FC
	dst.DIO1 = src.DIO1
	dst.DIO2 = src.DIO2
	dst.PurchasePrice = src.PurchasePrice
	dst.CurrentSalePrice = src.CurrentSalePrice
	dst.SuggestedSalePrice = src.SuggestedSalePrice
	if withRank {
		dst.Rank = src.Rank
	}
}
