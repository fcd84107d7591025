package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tickermind/tickermind/pkg/events"
)

// StartAnalyze submits an analysis and returns the open streaming response.
func (a *TestApp) StartAnalyze(t *testing.T, body map[string]any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(a.URL+"/api/analyze", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

// Analyze submits an analysis and drains its NDJSON stream to completion.
func (a *TestApp) Analyze(t *testing.T, body map[string]any) (string, []events.Event) {
	t.Helper()
	resp := a.StartAnalyze(t, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp.Header.Get("X-Session-ID"), DrainEvents(t, resp)
}

// DrainEvents reads NDJSON events until the stream ends.
func DrainEvents(t *testing.T, resp *http.Response) []events.Event {
	t.Helper()
	defer resp.Body.Close()

	var out []events.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev events.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		out = append(out, ev)
	}
	require.NoError(t, scanner.Err())
	return out
}

// EventsOfType filters events by type, preserving order.
func EventsOfType(evs []events.Event, typ string) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// GetJSON fetches a path and decodes the JSON body into out.
func (a *TestApp) GetJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(a.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// PostJSON posts a JSON body to a path and returns the status code.
func (a *TestApp) PostJSON(t *testing.T, path string, body any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(a.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}
