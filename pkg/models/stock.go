package models

import "encoding/json"

// Quote is the price snapshot for a symbol. Values are kept as strings to
// preserve the source formatting (trailing zeros, percent signs).
type Quote struct {
	Price     string `json:"price"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Change    string `json:"change"`
	ChangePct string `json:"change_pct"`
}

// StockContext is the immutable per-session view of the analysed stock.
// Extra carries provider fields the prompt builder formats verbatim.
type StockContext struct {
	Symbol string            `json:"symbol"`
	Name   string            `json:"name"`
	Quote  Quote             `json:"quote"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// EvidenceSource is one reference-data source gathered for an agent:
// how many records the provider returned and a short description.
// A failed or timed-out provider is recorded with Count 0 and
// Note "unavailable" — evidence never blocks the LLM call.
type EvidenceSource struct {
	Key     string          `json:"key"`
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	Note    string          `json:"note,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EvidenceBundle is the ordered set of sources for one agent. Order matches
// the agent spec's evidence bindings. Created once, read-only thereafter.
type EvidenceBundle struct {
	Sources []EvidenceSource `json:"sources"`
}

// Available counts the sources that returned at least one record.
func (b *EvidenceBundle) Available() int {
	n := 0
	for _, s := range b.Sources {
		if s.Count > 0 {
			n++
		}
	}
	return n
}
