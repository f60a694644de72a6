package collector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"badewanne/internal/model"

	"github.com/lib/pq"
)

// DefaultView is the warehouse view holding the daily listing metrics.
const DefaultView = "vFactEbayPrices"

var warehouseColumns = []string{
	"ItemNo", "eBayItemID", "AuctionID", "SKU", "ItemDescription", "Channel", "Country",
	"SalesGoalReachedInLast7Days", "SalesGoalReachedInLast14Days", "FC_Erf_MTD", "COGS24HVS7D",
	"PositionCurrentDay", "Bestand_Gesamt", "LRW", "FC", "DIO1", "DIO2",
	"OurPurchasePrice", "CurrentSalePrice", "SuggestedSalePrice",
}

// WarehouseSource reads the snapshot from the BI warehouse. Rows with any
// NULL column are dropped.
type WarehouseSource struct {
	db    *sql.DB
	query string
}

// OpenWarehouse connects to a Postgres warehouse.
func OpenWarehouse(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	return db, nil
}

// NewWarehouseSource reads from view, DefaultView when empty.
func NewWarehouseSource(db *sql.DB, view string) *WarehouseSource {
	if view == "" {
		view = DefaultView
	}
	cols := make([]string, len(warehouseColumns))
	for i, c := range warehouseColumns {
		cols[i] = pq.QuoteIdentifier(c)
	}
	return &WarehouseSource{
		db:    db,
		query: "SELECT " + strings.Join(cols, ", ") + " FROM " + pq.QuoteIdentifier(view),
	}
}

func (s *WarehouseSource) Name() string { return "warehouse" }

func (s *WarehouseSource) Close() error { return s.db.Close() }

func (s *WarehouseSource) Fetch(ctx context.Context) ([]model.FeedRow, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query warehouse: %w", err)
	}
	defer rows.Close()

	var out []model.FeedRow
	for rows.Next() {
		var (
			itemNo                                sql.NullInt64
			itemID, auction, sku, desc, ch, cntry sql.NullString
			s7, s14, mtd, cogs                    sql.NullFloat64
			rank, stock, lrw, fc, dio1, dio2      sql.NullInt64
			purchase, current, suggested          sql.NullFloat64
		)
		if err := rows.Scan(&itemNo, &itemID, &auction, &sku, &desc, &ch, &cntry,
			&s7, &s14, &mtd, &cogs, &rank, &stock, &lrw, &fc, &dio1, &dio2,
			&purchase, &current, &suggested); err != nil {
			return nil, fmt.Errorf("scan warehouse row: %w", err)
		}
		if !allValid(itemNo.Valid, itemID.Valid, auction.Valid, sku.Valid, desc.Valid, ch.Valid, cntry.Valid,
			s7.Valid, s14.Valid, mtd.Valid, cogs.Valid, rank.Valid, stock.Valid, lrw.Valid, fc.Valid,
			dio1.Valid, dio2.Valid, purchase.Valid, current.Valid, suggested.Valid) {
			continue
		}
		out = append(out, model.FeedRow{
			ItemNo:             itemNo.Int64,
			ItemID:             itemID.String,
			AuctionID:          auction.String,
			SKU:                sku.String,
			Description:        desc.String,
			Channel:            ch.String,
			Country:            cntry.String,
			Sales7:             s7.Float64,
			Sales14:            s14.Float64,
			SalesMTD:           mtd.Float64,
			CogsRatio:          cogs.Float64,
			Rank:               int(rank.Int64),
			Stock:              int(stock.Int64),
			LRW:                int(lrw.Int64),
			FC:                 int(fc.Int64),
			DIO1:               int(dio1.Int64),
			DIO2:               int(dio2.Int64),
			PurchasePrice:      purchase.Float64,
			CurrentSalePrice:   current.Float64,
			SuggestedSalePrice: suggested.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read warehouse rows: %w", err)
	}
	return out, nil
}

func allValid(flags ...bool) bool {
	for _, ok := range flags {
		if !ok {
			return false
		}
	}
	return true
}
