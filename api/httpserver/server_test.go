package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gotest.tools/assert"

	"tvitch/domain/itch"
	"tvitch/domain/record"
	_ "tvitch/infra/metrics"
	"tvitch/infra/store"
)

func newServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	assert.NilError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewServer(st, nil), st
}

func get(t *testing.T, s *Server, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestBooksRoutes(t *testing.T) {
	s, st := newServer(t)
	assert.NilError(t, st.PutBook("S013019-v50", &record.BookRecord{
		Ticker: "AAPL", Final: true,
		Asks: []record.Quote{{Price: itch.MustPrice("154.5"), Shares: 100}},
	}))

	code, body := get(t, s, "/api/v1/books")
	assert.Equal(t, code, http.StatusOK)
	assert.DeepEqual(t, body["tickers"], []interface{}{"AAPL"})

	code, body = get(t, s, "/api/v1/books/AAPL")
	assert.Equal(t, code, http.StatusOK)
	assert.Equal(t, len(body["books"].([]interface{})), 1)

	code, body = get(t, s, "/api/v1/books/AAPL/S013019-v50")
	assert.Equal(t, code, http.StatusOK)
	ask := body["asks"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, ask["price"], "154.5")

	code, body = get(t, s, "/api/v1/books/AAPL/missing")
	assert.Equal(t, code, http.StatusNotFound)
	assert.Assert(t, strings.Contains(body["error"].(string), "not found"))
}

func TestStatusAndHealth(t *testing.T) {
	s, _ := newServer(t)

	code, body := get(t, s, "/api/v1/status")
	assert.Equal(t, code, http.StatusOK)
	assert.DeepEqual(t, body["statuses"], []interface{}{})

	code, body = get(t, s, "/healthz")
	assert.Equal(t, code, http.StatusOK)
	assert.Equal(t, body["status"], "ok")
}

func TestMetricsExposed(t *testing.T) {
	s, _ := newServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(rec.Body.String(), "tvitch_replay_duration_seconds"))
}
