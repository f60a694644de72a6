package recorder

// NoopRecorder is a no-op implementation used when history is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(_ *CycleEvent) error          { return nil }
func (n *NoopRecorder) RecordPhase(_ *PhaseEvent) error          { return nil }
func (n *NoopRecorder) RecordPriceChanges(_ []PriceChange) error { return nil }
func (n *NoopRecorder) Close() error                             { return nil }
