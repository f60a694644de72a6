package model

import "time"

// Epoch is the zero value used for campaign timestamps that were never set.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Key uniquely identifies a listing in the metrics feed.
type Key struct {
	ItemNo    int64
	AuctionID string
}

// Item is the stored state of one marketplace listing.
type Item struct {
	ID          int64  `json:"id"`
	ItemNo      int64  `json:"item_no"`
	ItemID      string `json:"item_id"`
	AuctionID   string `json:"auction_id"`
	SKU         string `json:"sku"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	Country     string `json:"country"`

	// Metrics snapshot, overwritten by ingestion.
	Sales7    float64 `json:"sales_l7"`
	Sales14   float64 `json:"sales_l14"`
	SalesMTD  float64 `json:"sales_mtd"`
	CogsRatio float64 `json:"cogs_ratio"`
	Rank      int     `json:"rank"`
	Stock     int     `json:"stock"`
	LRW       int     `json:"lrw"`
	FC        int     `json:"fc"`
	DIO1      int     `json:"dio1"`
	DIO2      int     `json:"dio2"`

	PurchasePrice      float64 `json:"purchase_price"`
	CurrentSalePrice   float64 `json:"current_sale_price"`
	SuggestedSalePrice float64 `json:"suggested_sale_price"`
	LastHumanSetPrice  float64 `json:"last_human_set_price"`
	NewPrice           float64 `json:"new_price"`

	Stage            Stage     `json:"stage"`
	LastStageStartAt time.Time `json:"last_stage_start_at"`
	LastBlockEndAt   time.Time `json:"last_block_end_at"`
}

// Key returns the feed identity of the item.
func (it Item) Key() Key {
	return Key{ItemNo: it.ItemNo, AuctionID: it.AuctionID}
}

// IDs extracts store ids preserving order.
func IDs(items []Item) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
