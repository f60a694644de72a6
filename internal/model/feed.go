package model

// UnrankedRank is the rank the metrics feed reports for listings it could
// not rank.
const UnrankedRank = 501

// FeedRow is one row of the daily metrics snapshot. JSON names follow the
// warehouse view columns.
type FeedRow struct {
	ItemNo             int64   `json:"ItemNo"`
	ItemID             string  `json:"eBayItemID"`
	AuctionID          string  `json:"AuctionID"`
	SKU                string  `json:"SKU"`
	Description        string  `json:"ItemDescription"`
	Channel            string  `json:"Channel"`
	Country            string  `json:"Country"`
	Sales7             float64 `json:"SalesGoalReachedInLast7Days"`
	Sales14            float64 `json:"SalesGoalReachedInLast14Days"`
	SalesMTD           float64 `json:"FC_Erf_MTD"`
	CogsRatio          float64 `json:"COGS24HVS7D"`
	Rank               int     `json:"PositionCurrentDay"`
	Stock              int     `json:"Bestand_Gesamt"`
	LRW                int     `json:"LRW"`
	FC                 int     `json:"FC"`
	DIO1               int     `json:"DIO1"`
	DIO2               int     `json:"DIO2"`
	PurchasePrice      float64 `json:"OurPurchasePrice"`
	CurrentSalePrice   float64 `json:"CurrentSalePrice"`
	SuggestedSalePrice float64 `json:"SuggestedSalePrice"`
}

// Key returns the identity of the row.
func (r FeedRow) Key() Key {
	return Key{ItemNo: r.ItemNo, AuctionID: r.AuctionID}
}

// Item converts the row into item metrics. Campaign fields are left zero.
func (r FeedRow) Item() Item {
	return Item{
		ItemNo:             r.ItemNo,
		ItemID:             r.ItemID,
		AuctionID:          r.AuctionID,
		SKU:                r.SKU,
		Description:        r.Description,
		Channel:            r.Channel,
		Country:            r.Country,
		Sales7:             r.Sales7,
		Sales14:            r.Sales14,
		SalesMTD:           r.SalesMTD,
		CogsRatio:          r.CogsRatio,
		Rank:               r.Rank,
		Stock:              r.Stock,
		LRW:                r.LRW,
		FC:                 r.FC,
		DIO1:               r.DIO1,
		DIO2:               r.DIO2,
		PurchasePrice:      r.PurchasePrice,
		CurrentSalePrice:   r.CurrentSalePrice,
		SuggestedSalePrice: r.SuggestedSalePrice,
	}
}
