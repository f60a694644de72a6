package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"badewanne/internal/model"
)

// SQLiteStore persists items to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex // serialises writers
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases and write ordering consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", dbPath).Msg("sqlite item store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			item_no              INTEGER NOT NULL,
			item_id              TEXT NOT NULL DEFAULT '',
			auction_id           TEXT NOT NULL,
			sku                  TEXT NOT NULL DEFAULT '',
			description          TEXT NOT NULL DEFAULT '',
			channel              TEXT NOT NULL DEFAULT '',
			country              TEXT NOT NULL DEFAULT '',
			sales_l7             REAL NOT NULL DEFAULT 0,
			sales_l14            REAL NOT NULL DEFAULT 0,
			sales_mtd            REAL NOT NULL DEFAULT 0,
			cogs_ratio           REAL NOT NULL DEFAULT 0,
			item_rank            INTEGER NOT NULL DEFAULT 0,
			stock                INTEGER NOT NULL DEFAULT 0,
			lrw                  INTEGER NOT NULL DEFAULT 0,
			fc                   INTEGER NOT NULL DEFAULT 0,
			dio1                 INTEGER NOT NULL DEFAULT 0,
			dio2                 INTEGER NOT NULL DEFAULT 0,
			purchase_price       REAL NOT NULL DEFAULT 0,
			current_sale_price   REAL NOT NULL DEFAULT 0,
			suggested_sale_price REAL NOT NULL DEFAULT 0,
			last_human_set_price REAL NOT NULL DEFAULT 0,
			new_price            REAL NOT NULL DEFAULT 0,
			stage                TEXT NOT NULL DEFAULT 'NORMAL',
			last_stage_start_at  INTEGER NOT NULL DEFAULT 0,
			last_block_end_at    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_key ON items(item_no, auction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_stage ON items(stage)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const itemColumns = `id, item_no, item_id, auction_id, sku, description, channel, country,
	sales_l7, sales_l14, sales_mtd, cogs_ratio, item_rank, stock, lrw, fc, dio1, dio2,
	purchase_price, current_sale_price, suggested_sale_price, last_human_set_price, new_price,
	stage, last_stage_start_at, last_block_end_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (model.Item, error) {
	var (
		it                model.Item
		stage             string
		startAt, blockEnd int64
	)
	err := row.Scan(&it.ID, &it.ItemNo, &it.ItemID, &it.AuctionID, &it.SKU, &it.Description,
		&it.Channel, &it.Country,
		&it.Sales7, &it.Sales14, &it.SalesMTD, &it.CogsRatio, &it.Rank, &it.Stock, &it.LRW, &it.FC,
		&it.DIO1, &it.DIO2,
		&it.PurchasePrice, &it.CurrentSalePrice, &it.SuggestedSalePrice, &it.LastHumanSetPrice, &it.NewPrice,
		&stage, &startAt, &blockEnd)
	if err != nil {
		return model.Item{}, err
	}
	it.Stage = model.Stage(stage)
	it.LastStageStartAt = time.Unix(startAt, 0).UTC()
	it.LastBlockEndAt = time.Unix(blockEnd, 0).UTC()
	return it, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// idChunk bounds the bind variables of one id IN (...) clause.
const idChunk = 500

// chunkIDs splits ids into runs of at most idChunk, dropping duplicates.
func chunkIDs(ids []int64) [][]int64 {
	seen := make(map[int64]struct{}, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	var out [][]int64
	for len(uniq) > idChunk {
		out = append(out, uniq[:idChunk])
		uniq = uniq[idChunk:]
	}
	if len(uniq) > 0 {
		out = append(out, uniq)
	}
	return out
}

func (s *SQLiteStore) Find(ctx context.Context, f Filter) ([]model.Item, error) {
	if f.IDs == nil {
		return s.find(ctx, f, nil)
	}
	var out []model.Item
	for _, chunk := range chunkIDs(f.IDs) {
		items, err := s.find(ctx, f, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sortByID(out)
	return out, nil
}

// find runs one query; ids restricts it when non-nil.
func (s *SQLiteStore) find(ctx context.Context, f Filter, ids []int64) ([]model.Item, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.Stages) > 0 {
		where = append(where, "stage IN ("+placeholders(len(f.Stages))+")")
		for _, st := range f.Stages {
			args = append(args, string(st))
		}
	}
	if ids != nil {
		where = append(where, "id IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	q := "SELECT " + itemColumns + " FROM items"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if f.Match == nil || f.Match(it) {
			out = append(out, it)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (model.Item, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return model.Item{}, ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, nil
}

// inTx runs fn inside one transaction and commits it.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStage(ctx context.Context, u StageUpdate) error {
	if len(u.IDs) == 0 {
		return nil
	}
	set := []string{"stage = ?"}
	args := []interface{}{string(u.Stage)}
	if !u.StageStartAt.IsZero() {
		set = append(set, "last_stage_start_at = ?")
		args = append(args, u.StageStartAt.Unix())
	}
	if !u.BlockEndAt.IsZero() {
		set = append(set, "last_block_end_at = ?")
		args = append(args, u.BlockEndAt.Unix())
	}
	head := "UPDATE items SET " + strings.Join(set, ", ") + " WHERE id IN ("

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkIDs(u.IDs) {
			chunkArgs := append(append([]interface{}{}, args...), int64sToArgs(chunk)...)
			if _, err := tx.ExecContext(ctx, head+placeholders(len(chunk))+")", chunkArgs...); err != nil {
				return fmt.Errorf("update stage: %w", err)
			}
		}
		return nil
	})
}

func int64sToArgs(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func (s *SQLiteStore) ApplyPricing(ctx context.Context, u PricingUpdate) error {
	if len(u.Items) == 0 {
		return nil
	}
	q := `UPDATE items SET stage = ?, current_sale_price = ?, last_human_set_price = ?, new_price = ?`
	if !u.BlockEndAt.IsZero() {
		q += `, last_block_end_at = ?`
	}
	q += ` WHERE id = ?`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare pricing update: %w", err)
		}
		defer stmt.Close()
		for _, it := range u.Items {
			args := []interface{}{string(u.Stage), it.CurrentSalePrice, it.LastHumanSetPrice, it.NewPrice}
			if !u.BlockEndAt.IsZero() {
				args = append(args, u.BlockEndAt.Unix())
			}
			args = append(args, it.ID)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("update pricing for item %d: %w", it.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) KeyIndex(ctx context.Context) (map[model.Key][]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, item_no, auction_id FROM items")
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	idx := make(map[model.Key][]int64)
	for rows.Next() {
		var (
			id  int64
			key model.Key
		)
		if err := rows.Scan(&id, &key.ItemNo, &key.AuctionID); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		idx[key] = append(idx[key], id)
	}
	return idx, rows.Err()
}

// Insert stores items and writes the assigned ids back into the slice.
func (s *SQLiteStore) Insert(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	q := `INSERT INTO items (item_no, item_id, auction_id, sku, description, channel, country,
		sales_l7, sales_l14, sales_mtd, cogs_ratio, item_rank, stock, lrw, fc, dio1, dio2,
		purchase_price, current_sale_price, suggested_sale_price, last_human_set_price, new_price,
		stage, last_stage_start_at, last_block_end_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i := range items {
			it := &items[i]
			prepareNew(it)
			res, err := stmt.ExecContext(ctx, it.ItemNo, it.ItemID, it.AuctionID, it.SKU, it.Description,
				it.Channel, it.Country,
				it.Sales7, it.Sales14, it.SalesMTD, it.CogsRatio, it.Rank, it.Stock, it.LRW, it.FC,
				it.DIO1, it.DIO2,
				it.PurchasePrice, it.CurrentSalePrice, it.SuggestedSalePrice, it.LastHumanSetPrice, it.NewPrice,
				string(it.Stage), it.LastStageStartAt.Unix(), it.LastBlockEndAt.Unix())
			if err != nil {
				return fmt.Errorf("insert item %d/%s: %w", it.ItemNo, it.AuctionID, err)
			}
			if it.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("insert id: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateMetrics(ctx context.Context, items []model.Item, withRank bool) error {
	if len(items) == 0 {
		return nil
	}
	q := `UPDATE items SET item_id = ?, sku = ?, description = ?, channel = ?, country = ?,
		sales_l7 = ?, sales_l14 = ?, sales_mtd = ?, cogs_ratio = ?, stock = ?, lrw = ?, fc = ?,
		dio1 = ?, dio2 = ?, purchase_price = ?, current_sale_price = ?, suggested_sale_price = ?`
	if withRank {
		q += `, item_rank = ?`
	}
	q += ` WHERE id = ?`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare metrics update: %w", err)
		}
		defer stmt.Close()
		for _, it := range items {
			args := []interface{}{it.ItemID, it.SKU, it.Description, it.Channel, it.Country,
				it.Sales7, it.Sales14, it.SalesMTD, it.CogsRatio, it.Stock, it.LRW, it.FC,
				it.DIO1, it.DIO2, it.PurchasePrice, it.CurrentSalePrice, it.SuggestedSalePrice}
			if withRank {
				args = append(args, it.Rank)
			}
			args = append(args, it.ID)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("update metrics for item %d: %w", it.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT stage, COUNT(*) FROM items GROUP BY stage")
	if err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.Stage]int)
	for rows.Next() {
		var (
			stage string
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[model.Stage(stage)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.log.Info().Msg("closing sqlite item store")
	return s.db.Close()
}
