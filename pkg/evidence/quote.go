package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tickermind/tickermind/pkg/models"
)

// QuoteKey is the provider key the quote snapshot registers under.
const QuoteKey = "quote"

// QuoteProvider fetches the realtime price snapshot from an eastmoney-style
// push2 endpoint. It backs both the session's StockContext bootstrap and
// the "quote" evidence binding.
type QuoteProvider struct {
	baseURL string
	http    *http.Client
}

// NewQuoteProvider creates a quote provider against the given base URL.
func NewQuoteProvider(baseURL string) *QuoteProvider {
	return &QuoteProvider{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

// Key implements Provider.
func (p *QuoteProvider) Key() string { return QuoteKey }

// Label implements Provider.
func (p *QuoteProvider) Label() string { return "Quote snapshot" }

// quotePayload mirrors the push2 stock/get response. Prices arrive scaled
// by 100.
type quotePayload struct {
	Data *struct {
		Price     float64 `json:"f43"`
		High      float64 `json:"f44"`
		Low       float64 `json:"f45"`
		Open      float64 `json:"f46"`
		Name      string  `json:"f58"`
		Change    float64 `json:"f169"`
		ChangePct float64 `json:"f170"`
	} `json:"data"`
}

// Snapshot fetches the typed stock context for a symbol. An unknown symbol
// or an empty payload is an error; the caller treats it as no stock data.
func (p *QuoteProvider) Snapshot(ctx context.Context, symbol string) (*models.StockContext, error) {
	url := fmt.Sprintf("%s/api/qt/stock/get?secid=%s&fields=f43,f44,f45,f46,f58,f169,f170", p.baseURL, secID(symbol))
	body, err := getJSON(ctx, p.http, url)
	if err != nil {
		return nil, err
	}

	var payload quotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote payload: %w", err)
	}
	if payload.Data == nil || payload.Data.Name == "" {
		return nil, fmt.Errorf("no quote data for symbol %s", symbol)
	}

	d := payload.Data
	return &models.StockContext{
		Symbol: symbol,
		Name:   d.Name,
		Quote: models.Quote{
			Price:     formatScaled(d.Price),
			Open:      formatScaled(d.Open),
			High:      formatScaled(d.High),
			Low:       formatScaled(d.Low),
			Change:    formatScaled(d.Change),
			ChangePct: formatScaled(d.ChangePct) + "%",
		},
	}, nil
}

// Fetch implements Provider: the snapshot wrapped as an evidence source.
func (p *QuoteProvider) Fetch(ctx context.Context, symbol string) (models.EvidenceSource, error) {
	stock, err := p.Snapshot(ctx, symbol)
	if err != nil {
		return models.EvidenceSource{}, err
	}
	payload, err := json.Marshal(stock)
	if err != nil {
		return models.EvidenceSource{}, err
	}
	return models.EvidenceSource{
		Key:     QuoteKey,
		Label:   p.Label(),
		Count:   1,
		Payload: payload,
	}, nil
}

// secID converts a bare A-share code to the push2 market-qualified id:
// Shanghai codes (6xx/9xx) are market 1, everything else market 0.
func secID(symbol string) string {
	if strings.HasPrefix(symbol, "6") || strings.HasPrefix(symbol, "9") {
		return "1." + symbol
	}
	return "0." + symbol
}

func formatScaled(v float64) string {
	return fmt.Sprintf("%.2f", v/100)
}

// getJSON performs one GET and returns the body, treating any non-200
// status as an error.
func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
