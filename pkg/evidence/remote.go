package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tickermind/tickermind/pkg/models"
)

// Provider keys for the remote list providers.
const (
	FundFlowKey = "fund-flow"
	NewsKey     = "news"
	SectorKey   = "sector"
	MacroKey    = "macro"
)

// listProvider fetches a JSON document holding a list of records and turns
// it into an evidence source whose count is the list length. All four
// non-quote reference feeds share this shape.
type listProvider struct {
	key   string
	label string
	http  *http.Client
	url   func(symbol string) string
}

func (p *listProvider) Key() string   { return p.key }
func (p *listProvider) Label() string { return p.label }

// Fetch implements Provider.
func (p *listProvider) Fetch(ctx context.Context, symbol string) (models.EvidenceSource, error) {
	body, err := getJSON(ctx, p.http, p.url(symbol))
	if err != nil {
		return models.EvidenceSource{}, err
	}

	payload, count, err := extractList(body)
	if err != nil {
		return models.EvidenceSource{}, err
	}
	return models.EvidenceSource{
		Key:     p.key,
		Label:   p.label,
		Count:   count,
		Payload: payload,
	}, nil
}

// extractList pulls the record list out of a push2-style envelope: the
// "data" object holds the records under "klines", "diff", or "items".
func extractList(body []byte) (json.RawMessage, int, error) {
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("failed to decode list payload: %w", err)
	}
	if envelope.Data == nil {
		return nil, 0, fmt.Errorf("list payload has no data")
	}

	for _, field := range []string{"klines", "diff", "items"} {
		raw, ok := envelope.Data[field]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, 0, fmt.Errorf("field %q is not a list: %w", field, err)
		}
		return raw, len(items), nil
	}
	return nil, 0, fmt.Errorf("list payload has no record field")
}

// NewFundFlowProvider fetches the recent main-capital flow klines.
func NewFundFlowProvider(baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &listProvider{
		key:   FundFlowKey,
		label: "Capital flows",
		http:  &http.Client{},
		url: func(symbol string) string {
			return fmt.Sprintf("%s/api/qt/stock/fflow/daykline/get?secid=%s&lmt=10&klt=101&fields1=f1,f2,f3,f7&fields2=f51,f52,f53,f54,f55", base, secID(symbol))
		},
	}
}

// NewNewsProvider fetches recent headlines for a symbol.
func NewNewsProvider(baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &listProvider{
		key:   NewsKey,
		label: "Recent news",
		http:  &http.Client{},
		url: func(symbol string) string {
			return fmt.Sprintf("%s/api/news/list?symbol=%s&limit=10", base, symbol)
		},
	}
}

// NewSectorProvider fetches the symbol's sector standings.
func NewSectorProvider(baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &listProvider{
		key:   SectorKey,
		label: "Sector standings",
		http:  &http.Client{},
		url: func(symbol string) string {
			return fmt.Sprintf("%s/api/qt/slist/get?secid=%s&spt=3&fltt=2&fields=f3,f12,f14,f62", base, secID(symbol))
		},
	}
}

// NewMacroProvider fetches the broad index snapshot. The record set is the
// same for every symbol.
func NewMacroProvider(baseURL string) Provider {
	base := strings.TrimRight(baseURL, "/")
	return &listProvider{
		key:   MacroKey,
		label: "Macro backdrop",
		http:  &http.Client{},
		url: func(string) string {
			return fmt.Sprintf("%s/api/qt/ulist.np/get?secids=1.000001,0.399001,0.399006&fltt=2&fields=f2,f3,f4,f12,f14", base)
		},
	}
}

// RegisterDefaults installs the quote provider and the four list providers
// against one base URL.
func RegisterDefaults(registry *Registry, baseURL string) *QuoteProvider {
	quote := NewQuoteProvider(baseURL)
	registry.Register(quote)
	registry.Register(NewFundFlowProvider(baseURL))
	registry.Register(NewNewsProvider(baseURL))
	registry.Register(NewSectorProvider(baseURL))
	registry.Register(NewMacroProvider(baseURL))
	return quote
}
