package e2e

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// NewMockMarket serves push2-style market data for the evidence providers.
// Symbols containing 999999 answer the quote endpoint with an empty
// document, which the engine treats as no stock data.
func NewMockMarket(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/qt/stock/get", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("secid"), "999999") {
			writeJSON(w, `{"data":null}`)
			return
		}
		writeJSON(w, `{"data":{"f43":170012,"f44":171500,"f45":169000,"f46":170000,"f58":"贵州茅台","f169":71,"f170":42}}`)
	})
	mux.HandleFunc("/api/qt/stock/fflow/daykline/get", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"data":{"klines":["2026-08-20,1200000,0.35","2026-08-21,-800000,-0.22","2026-08-22,2500000,0.71"]}}`)
	})
	mux.HandleFunc("/api/news/list", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"data":{"items":[{"title":"Quarterly results beat estimates","time":"2026-08-21"},{"title":"New distribution agreement signed","time":"2026-08-19"}]}}`)
	})
	mux.HandleFunc("/api/qt/slist/get", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"data":{"diff":[{"f12":"600519","f14":"贵州茅台","f3":0.42},{"f12":"000858","f14":"五粮液","f3":-0.18},{"f12":"000568","f14":"泸州老窖","f3":0.11},{"f12":"600809","f14":"山西汾酒","f3":0.55}]}}`)
	})
	mux.HandleFunc("/api/qt/ulist.np/get", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"data":{"diff":[{"f12":"000001","f14":"上证指数","f3":0.3},{"f12":"399001","f14":"深证成指","f3":-0.1},{"f12":"399006","f14":"创业板指","f3":0.8}]}}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
