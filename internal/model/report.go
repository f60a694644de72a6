package model

import "time"

// CycleKind names what started a cycle.
type CycleKind string

const (
	KindScheduled CycleKind = "SCHEDULED"
	KindManual    CycleKind = "MANUAL"
	KindStart     CycleKind = "START"
	KindStop      CycleKind = "STOP"
)

// PhaseSummary is the outcome of one progression phase.
type PhaseSummary struct {
	Phase     int    `json:"phase"`
	Target    Stage  `json:"target"`
	Selected  int    `json:"selected"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// CycleReport summarises one evaluation cycle or restricted pass.
type CycleReport struct {
	CycleID    string    `json:"cycle_id"`
	Kind       CycleKind `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	IDs        []int64   `json:"ids,omitempty"` // restriction of a manual pass

	Fetched    int  `json:"fetched"`
	Inserted   int  `json:"inserted"`
	Updated    int  `json:"updated"`
	Skipped    int  `json:"skipped"`
	RankFrozen bool `json:"rank_frozen"`

	ToLRW     int `json:"to_lrw"`
	ToBlocked int `json:"to_blocked"`
	ToNormal  int `json:"to_normal"`
	ToReady   int `json:"to_ready"`

	Phases []PhaseSummary `json:"phases"`
	Errors []string       `json:"errors,omitempty"`
}

// Classified returns the number of classifier moves.
func (r *CycleReport) Classified() int {
	return r.ToLRW + r.ToBlocked + r.ToNormal + r.ToReady
}

// Repriced returns the number of gateway-confirmed stage moves.
func (r *CycleReport) Repriced() int {
	n := 0
	for _, p := range r.Phases {
		n += p.Succeeded
	}
	return n
}
