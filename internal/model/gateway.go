package model

// PriceLine is one listing price change submitted to the pricing gateway.
type PriceLine struct {
	Price     float64 `json:"Price"`
	ListingID string  `json:"ListingId"`
	SKU       string  `json:"SKU"`
	Reason    string  `json:"Reason"`
}

// LineResult is the gateway outcome for the line at the same index.
type LineResult struct {
	IsSuccessful bool   `json:"IsSuccessful"`
	Message      string `json:"Message"`
}

// BatchResult is the gateway response to one batch submission.
type BatchResult struct {
	HasErrors bool         `json:"HasErrors"`
	Results   []LineResult `json:"Results"`
}

// Succeeded reports whether the line at index i was applied by the gateway.
// When HasErrors is false every line counts as applied.
func (r *BatchResult) Succeeded(i int) bool {
	if !r.HasErrors {
		return true
	}
	if i < 0 || i >= len(r.Results) {
		return false
	}
	return r.Results[i].IsSuccessful
}

// Message returns the gateway message for line i, if any.
func (r *BatchResult) Message(i int) string {
	if i < 0 || i >= len(r.Results) {
		return ""
	}
	return r.Results[i].Message
}
