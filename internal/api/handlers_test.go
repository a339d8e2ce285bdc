package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/product-finder/internal/coordinator"
	"github.com/pricescout/product-finder/internal/history"
	"github.com/pricescout/product-finder/internal/models"
	"github.com/pricescout/product-finder/internal/session"
)

type fakeSearcher struct {
	lastRequest coordinator.Request
	outcome     models.SearchOutcome
}

func (f *fakeSearcher) Search(_ context.Context, req coordinator.Request) models.SearchOutcome {
	f.lastRequest = req
	return f.outcome
}

type fakeHistory struct {
	recordID  uuid.UUID
	recordErr error
	records   []history.Record
	stats     history.Stats
}

func (f *fakeHistory) RecordSearch(context.Context, string, models.SearchOutcome) (uuid.UUID, error) {
	return f.recordID, f.recordErr
}

func (f *fakeHistory) Recent(context.Context, string, int) ([]history.Record, error) {
	return f.records, nil
}

func (f *fakeHistory) SessionStats(context.Context, string) (history.Stats, error) {
	return f.stats, nil
}

type fakeSessions struct {
	session    *session.Session
	getErr     error
	recordedID string
}

func (f *fakeSessions) Create(_ context.Context, id string) (string, error) {
	if id == "" {
		id = "generated"
	}
	return id, nil
}

func (f *fakeSessions) Get(context.Context, string) (*session.Session, error) {
	return f.session, f.getErr
}

func (f *fakeSessions) RecordSearch(_ context.Context, _ string, searchID string) error {
	f.recordedID = searchID
	return nil
}

func (f *fakeSessions) Delete(context.Context, string) error { return nil }

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func successOutcome() models.SearchOutcome {
	return models.SearchOutcome{
		Status:   models.StatusSuccess,
		Criteria: models.SearchCriteria{Brand: "Apple", Model: "iPhone 15"},
		BestDeals: []models.Product{
			{Title: "iPhone 15 128GB", Price: 4999, Platform: models.PlatformJD},
		},
		FilteredProducts: []models.Product{
			{Title: "iPhone 15 128GB", Price: 4999, Platform: models.PlatformJD},
		},
		Summary: models.Summary{TotalProductsFound: 1, AfterFiltering: 1},
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{outcome: successOutcome()}
	hist := &fakeHistory{recordID: uuid.New()}
	sessions := &fakeSessions{}
	h := NewHandlers(searcher, hist, sessions, nil, nil, Defaults{MaxResultsPerPlatform: 10, Parallel: true}, nil)

	body, _ := json.Marshal(SearchRequest{
		Brand:     "Apple",
		Model:     "iPhone 15",
		MaxPrice:  6000,
		Platforms: []string{"jd", "taobao"},
		SessionID: "sess-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.StatusSuccess, resp.Status)
	assert.Equal(t, hist.recordID.String(), resp.SearchID)
	require.Len(t, resp.BestDeals, 1)
	assert.Equal(t, 4999.0, resp.BestDeals[0].Price)

	// Request defaults and platform tags flow through to the coordinator.
	assert.Equal(t, []models.Platform{models.PlatformJD, models.PlatformTaobao}, searcher.lastRequest.Platforms)
	assert.Equal(t, 10, searcher.lastRequest.MaxResultsPerPlatform)
	assert.True(t, searcher.lastRequest.Parallel)

	// The session was stamped with the recorded search id.
	assert.Equal(t, hist.recordID.String(), sessions.recordedID)
}

func TestSearchCreatesSessionWhenMissing(t *testing.T) {
	hist := &fakeHistory{recordID: uuid.New()}
	sessions := &fakeSessions{}
	h := NewHandlers(&fakeSearcher{outcome: successOutcome()}, hist, sessions, nil, nil, Defaults{}, nil)

	body, _ := json.Marshal(SearchRequest{Brand: "Apple", Model: "iPhone 15"})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "generated", resp.SessionID)
	assert.Equal(t, hist.recordID.String(), sessions.recordedID)
}

func TestSearchRejectsEmptyCriteria(t *testing.T) {
	h := NewHandlers(&fakeSearcher{}, nil, nil, nil, nil, Defaults{}, nil)

	body := []byte(`{"brand": "", "model": "  "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRejectsInvalidBody(t *testing.T) {
	h := NewHandlers(&fakeSearcher{}, nil, nil, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchSurvivesHistoryFailure(t *testing.T) {
	hist := &fakeHistory{recordErr: errors.New("db down")}
	h := NewHandlers(&fakeSearcher{outcome: successOutcome()}, hist, nil, nil, nil, Defaults{}, nil)

	body, _ := json.Marshal(SearchRequest{Brand: "Apple", Model: "iPhone 15"})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.SearchID)
	assert.Equal(t, models.StatusSuccess, resp.Status)
}

func TestGetHistory(t *testing.T) {
	hist := &fakeHistory{records: []history.Record{{Brand: "Apple", Model: "iPhone 15"}}}
	h := NewHandlers(&fakeSearcher{}, hist, nil, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var records []history.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "Apple", records[0].Brand)
}

func TestGetHistoryRejectsBadLimit(t *testing.T) {
	h := NewHandlers(&fakeSearcher{}, &fakeHistory{}, nil, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=zero", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoryStats(t *testing.T) {
	hist := &fakeHistory{stats: history.Stats{TotalSearches: 7, MostSearchedBrand: "Apple"}}
	h := NewHandlers(&fakeSearcher{}, hist, nil, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history/stats", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats history.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 7, stats.TotalSearches)
	assert.Equal(t, "Apple", stats.MostSearchedBrand)
}

func TestGetSessionNotFound(t *testing.T) {
	sessions := &fakeSessions{getErr: session.ErrNotFound}
	h := NewHandlers(&fakeSearcher{}, nil, sessions, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSession(t *testing.T) {
	sessions := &fakeSessions{session: &session.Session{ID: "abc", SearchCount: 2}}
	h := NewHandlers(&fakeSearcher{}, nil, sessions, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var sess session.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "abc", sess.ID)
	assert.Equal(t, 2, sess.SearchCount)
}

func TestCreateSession(t *testing.T) {
	h := NewHandlers(&fakeSearcher{}, nil, &fakeSessions{}, nil, nil, Defaults{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "generated", resp["session_id"])
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		cache      Pinger
		wantStatus int
		wantState  string
	}{
		{
			name:       "all reachable",
			db:         &fakePinger{},
			cache:      &fakePinger{},
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
		{
			name:       "database down",
			db:         &fakePinger{err: errors.New("refused")},
			cache:      &fakePinger{},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
		},
		{
			name:       "stores disabled",
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(&fakeSearcher{}, nil, nil, tt.db, tt.cache, Defaults{}, nil)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantState, resp.Status)
		})
	}
}
