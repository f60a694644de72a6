package recorder

import "time"

// CycleEvent summarises one evaluation cycle or restricted progression pass.
type CycleEvent struct {
	CycleID    string
	Kind       string // "SCHEDULED", "MANUAL", "START", "STOP"
	StartedAt  time.Time
	FinishedAt time.Time
	Inserted   int
	Updated    int
	Skipped    int
	Classified int // items moved by the stage classifier
	Note       string
}

// PhaseEvent records the outcome of one progression phase.
type PhaseEvent struct {
	CycleID   string
	Phase     int
	Target    string
	Selected  int
	Succeeded int
	Failed    int
	Error     string // transport or store error, empty on success
}

// PriceChange records one gateway-confirmed price change.
type PriceChange struct {
	CycleID   string
	ItemID    int64
	ListingID string
	SKU       string
	OldPrice  float64
	NewPrice  float64
	Reason    string
}

// Recorder persists operational history for analysis.
type Recorder interface {
	RecordCycle(evt *CycleEvent) error
	RecordPhase(evt *PhaseEvent) error
	RecordPriceChanges(changes []PriceChange) error
	Close() error
}
