package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/osintdeck/internal/classifier"
	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/extractor"
	"github.com/pbaille/osintdeck/internal/fetcher"
	"github.com/pbaille/osintdeck/internal/relevance"
	"github.com/pbaille/osintdeck/internal/store"
	"github.com/pbaille/osintdeck/internal/tld"
)

type staticTools []domain.Tool

func (s staticTools) AllTools(context.Context) ([]domain.Tool, error) { return s, nil }

var testTools = staticTools{
	{
		ID:   "hibp",
		Name: "Have I Been Pwned",
		Cards: []domain.Card{
			{Title: "Breach check", URLTemplate: "https://haveibeenpwned.com/account/{value}", InputTypes: []domain.Kind{domain.KindEmail}},
		},
	},
	{
		ID:   "shodan",
		Name: "Shodan",
		Cards: []domain.Card{
			{Title: "Host lookup", URLTemplate: "https://www.shodan.io/host/{value}", InputTypes: []domain.Kind{domain.KindIP}},
			{Title: "Explore", URLTemplate: "https://www.shodan.io/explore", InputTypes: []domain.Kind{domain.KindNone}},
		},
	},
}

func newTestServer(t *testing.T, feed http.HandlerFunc) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	feedSrv := httptest.NewServer(feed)
	t.Cleanup(feedSrv.Close)

	oracle, err := tld.New(ctx, store.NewMemory(), fetcher.New(2*time.Second, 1<<20), tld.Options{FeedURL: feedSrv.URL})
	require.NoError(t, err)
	clf, err := classifier.New(ctx, store.NewMemory(), nil)
	require.NoError(t, err)

	x := extractor.New(oracle)
	srv := New(Deps{
		Engine:     relevance.New(x, testTools, relevance.WithIntent(clf)),
		Extractor:  x,
		Classifier: clf,
		TLDs:       oracle,
	}, "")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func okFeed(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "# Version 2026101700\nCOM\nNET\nORG\nXN--P1AI\n")
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t, okFeed)

	status, body := do(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/search", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, okFeed)

	status, body := do(t, ts, http.MethodGet, "/search?q=user%40example.com", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "investigation", body["mode"])
	entities := body["entities"].([]any)
	require.Len(t, entities, 1)
	assert.Equal(t, "email", entities[0].(map[string]any)["kind"])
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)

	status, body = do(t, ts, http.MethodGet, "/search", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "catalog", body["mode"])
	assert.Len(t, body["matches"], 2)
	assert.Nil(t, body["intent"])
}

func TestDetect(t *testing.T) {
	ts := newTestServer(t, okFeed)

	_, body := do(t, ts, http.MethodGet, "/detect?value=8.8.8.8", "")
	assert.Equal(t, "ip", body["kind"])

	_, body = do(t, ts, http.MethodGet, "/detect?value=hello", "")
	assert.Contains(t, body, "kind")
	assert.Nil(t, body["kind"])
}

func TestRelevant(t *testing.T) {
	ts := newTestServer(t, okFeed)

	status, body := do(t, ts, http.MethodGet, "/tools/relevant?kind=ip", "")
	require.Equal(t, http.StatusOK, status)
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Len(t, tools[0].(map[string]any)["cards"], 1)

	status, body = do(t, ts, http.MethodGet, "/cards/relevant?kind=email,ip", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["cards"], 2)

	status, _ = do(t, ts, http.MethodGet, "/tools/relevant?kind=bogus", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, ts, http.MethodGet, "/cards/relevant", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClassifierLifecycle(t *testing.T) {
	ts := newTestServer(t, okFeed)

	status, body := do(t, ts, http.MethodGet, "/intent?q=who+owns+this+domain", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no model", body["error"])

	status, _ = do(t, ts, http.MethodPost, "/train", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = do(t, ts, http.MethodPost, "/samples", `{"text": " ", "category": "domain"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, ts, http.MethodPost, "/samples", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, ts, http.MethodPost, "/samples", `{"text": "buscar informacion del dominio", "category": "domain"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["id"])

	status, body = do(t, ts, http.MethodPost, "/samples/import", `[{"text": "geolocalizar direccion ip", "category": "ipv4"}, {"text": "buscar informacion del dominio", "category": "domain"}]`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["imported"])
	assert.Equal(t, float64(1), body["skipped"])

	status, _ = do(t, ts, http.MethodPost, "/samples/import", `{bad`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, ts, http.MethodPost, "/train", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["sample_count"])

	status, body = do(t, ts, http.MethodGet, "/model", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["category_count"])

	status, body = do(t, ts, http.MethodGet, "/intent?q=dominio", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "domain", body["category"])

	// catalog-mode searches carry the intent once a model exists
	_, body = do(t, ts, http.MethodGet, "/search?q=dominio", "")
	assert.Equal(t, "catalog", body["mode"])
	require.NotNil(t, body["intent"])

	status, body = do(t, ts, http.MethodGet, "/samples", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["samples"], 2)
	assert.Len(t, body["categories"], 2)

	status, _ = do(t, ts, http.MethodDelete, "/samples/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, ts, http.MethodDelete, "/samples/9", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, ts, http.MethodDelete, "/samples/0", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, ts, http.MethodDelete, "/samples", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, ts, http.MethodGet, "/model", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, ts, http.MethodPost, "/samples/defaults", "")
	require.Equal(t, http.StatusOK, status)
	assert.Greater(t, body["imported"], float64(0))
}

func TestTLDEndpoints(t *testing.T) {
	ts := newTestServer(t, okFeed)

	_, body := do(t, ts, http.MethodGet, "/tlds/com", "")
	assert.Equal(t, true, body["valid"])
	_, body = do(t, ts, http.MethodGet, "/tlds/lan", "")
	assert.Equal(t, false, body["valid"])

	status, body := do(t, ts, http.MethodPost, "/tlds/custom", `{"label": "lan"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["added"])
	status, _ = do(t, ts, http.MethodPost, "/tlds/custom", `{"label": "LAN"}`)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, ts, http.MethodPost, "/tlds/custom", `{"label": "a.b"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = do(t, ts, http.MethodGet, "/tlds/lan", "")
	assert.Equal(t, true, body["valid"])

	_, body = do(t, ts, http.MethodGet, "/tlds", "")
	assert.Equal(t, []any{"lan"}, body["custom"])

	status, _ = do(t, ts, http.MethodDelete, "/tlds/custom/lan", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, ts, http.MethodDelete, "/tlds/custom/lan", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, ts, http.MethodPost, "/tlds/refresh", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["labels"])

	_, body = do(t, ts, http.MethodGet, "/tlds/io", "")
	assert.Equal(t, false, body["valid"], "fallback replaced by the feed")
	_, body = do(t, ts, http.MethodGet, "/tlds/xn--p1ai", "")
	assert.Equal(t, true, body["valid"])
}

func TestTLDRefreshFailure(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	status, body := do(t, ts, http.MethodPost, "/tlds/refresh", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.NotEmpty(t, body["error"])

	_, body = do(t, ts, http.MethodGet, "/tlds/com", "")
	assert.Equal(t, true, body["valid"])
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, okFeed)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "osintdeck_tld_reference_labels")
}
