package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/promptbox/internal/model"
)

// mockCatalogService はCatalogServiceInterfaceのテスト用実装。
type mockCatalogService struct {
	entries []*model.CatalogEntry
	err     error
}

func (s *mockCatalogService) ListTitles(_ context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	titles := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		titles = append(titles, e.Title)
	}
	return titles, nil
}

func (s *mockCatalogService) FindByTitle(_ context.Context, title string) (*model.CatalogEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, e := range s.entries {
		if e.Title == title {
			return e, nil
		}
	}
	return nil, model.NewEntryNotFoundError(title)
}

func newTestRouter(catalog CatalogServiceInterface) http.Handler {
	return NewRouter(&RouterDeps{
		Logger:         testLogger(),
		Dispatcher:     &mockDispatcher{},
		Sender:         newMockSender(),
		EventLimiter:   allowAll{},
		CatalogService: catalog,
		Gatherer:       prometheus.NewRegistry(),
	})
}

func TestListTitles_ReturnsJSON(t *testing.T) {
	router := newTestRouter(&mockCatalogService{entries: []*model.CatalogEntry{
		{Title: "my cat"},
		{Title: "my dog"},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Titles []string `json:"titles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスがJSONであること: %v", err)
	}
	if len(resp.Titles) != 2 || resp.Titles[0] != "my cat" {
		t.Errorf("titles = %v", resp.Titles)
	}
}

func TestListTitles_EmptyCatalogReturnsEmptyArray(t *testing.T) {
	router := newTestRouter(&mockCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// nullではなく[]を返すこと
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスがJSONであること: %v", err)
	}
	if string(resp["titles"]) != "[]" {
		t.Errorf("titles = %s, want []", resp["titles"])
	}
}

func TestGetEntry_Found(t *testing.T) {
	router := newTestRouter(&mockCatalogService{entries: []*model.CatalogEntry{{
		Title:      "my_cat",
		ImagePath:  "images/my_cat.png",
		PromptPath: "prompts/my_cat.txt",
		Date:       "2026-08-28",
	}}})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/my_cat", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp entryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスがJSONであること: %v", err)
	}
	if resp.ImagePath != "images/my_cat.png" || resp.Date != "2026-08-28" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetEntry_NotFoundReturns404(t *testing.T) {
	router := newTestRouter(&mockCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスがJSONであること: %v", err)
	}
	if resp.Code != model.ErrCodeEntryNotFound {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeEntryNotFound)
	}
}

func TestCatalogAPI_ServiceErrorReturns500(t *testing.T) {
	router := newTestRouter(&mockCatalogService{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(&mockCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", w.Body.String(), "ok")
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(&mockCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
