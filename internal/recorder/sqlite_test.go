package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	now := time.Now()
	require.NoError(t, r.RecordCycle(&CycleEvent{
		CycleID: "c1", Kind: "SCHEDULED", StartedAt: now, FinishedAt: now, Classified: 3,
	}))
	require.NoError(t, r.RecordPhase(&PhaseEvent{
		CycleID: "c1", Phase: 7, Target: "BW_STAGE1_30D", Selected: 2, Succeeded: 1, Failed: 1,
	}))
	require.NoError(t, r.RecordPriceChanges([]PriceChange{
		{CycleID: "c1", ItemID: 1, ListingID: "100101102", SKU: "x;0", OldPrice: 100, NewPrice: 69.99, Reason: "r"},
	}))
	require.NoError(t, r.RecordPriceChanges(nil))

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT classified FROM cycles WHERE cycle_id = 'c1'`).Scan(&n))
	assert.Equal(t, 3, n)
	require.NoError(t, r.db.QueryRow(`SELECT failed FROM phases WHERE cycle_id = 'c1'`).Scan(&n))
	assert.Equal(t, 1, n)
	var price float64
	require.NoError(t, r.db.QueryRow(`SELECT new_price FROM price_changes WHERE item_id = 1`).Scan(&price))
	assert.Equal(t, 69.99, price)
}
