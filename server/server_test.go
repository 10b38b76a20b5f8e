package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/generator"
	"auto_wordpress_article_publisher/history"
	"auto_wordpress_article_publisher/pipeline"
	"auto_wordpress_article_publisher/publisher"
	"auto_wordpress_article_publisher/schedule"
)

type staticRuns map[int64]*pipeline.Run

func (s staticRuns) Runs() map[int64]*pipeline.Run { return s }

type fakeLedger struct {
	entries []history.Entry
	limit   int
	err     error
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func newTestServer(t *testing.T, runs RunSource, ledger Ledger) http.Handler {
	t.Helper()
	srv, err := New(runs, ledger, log.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, staticRuns{}, nil), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body healthResp
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestRuns(t *testing.T) {
	at := time.Date(2024, 3, 5, 6, 3, 0, 0, time.UTC)
	runs := staticRuns{
		2: {ID: "b", Request: pipeline.Request{ChatID: 2, Topic: "lochs"}, State: pipeline.Failed, Err: errors.New("image search: boom")},
		1: {
			ID:      "a",
			Request: pipeline.Request{ChatID: 1, Topic: "closes"},
			State:   pipeline.Done,
			Article: generator.Article{Title: `Hidden closes by <a href="https://www.qloga.com">QLOGA</a>`},
			Slot:    schedule.Resolution{At: at},
			Post:    publisher.Post{Link: "https://blog/?p=4"},
		},
	}
	rec := get(t, newTestServer(t, runs, nil), "/api/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []runResp
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ChatID != 1 || got[1].ChatID != 2 {
		t.Fatalf("runs = %+v", got)
	}
	if got[0].Title != "Hidden closes by QLOGA" || got[0].Link != "https://blog/?p=4" || !got[0].ScheduledAt.Equal(at) {
		t.Fatalf("done run = %+v", got[0])
	}
	if got[1].State != "failed" || got[1].Error != "image search: boom" || got[1].Link != "" {
		t.Fatalf("failed run = %+v", got[1])
	}
}

func TestPublications(t *testing.T) {
	ledger := &fakeLedger{entries: []history.Entry{{RequestID: "r1", Topic: "tram", State: "done", Link: "https://blog/?p=1"}}}
	h := newTestServer(t, staticRuns{}, ledger)

	rec := get(t, h, "/api/publications?limit=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ledger.limit != maxLimit {
		t.Fatalf("limit = %d", ledger.limit)
	}
	var got []publicationResp
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RequestID != "r1" || got[0].Link != "https://blog/?p=1" {
		t.Fatalf("publications = %+v", got)
	}

	if rec := get(t, h, "/api/publications?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
	get(t, h, "/api/publications")
	if ledger.limit != defaultLimit {
		t.Fatalf("default limit = %d", ledger.limit)
	}

	ledger.err = errors.New("disk gone")
	if rec := get(t, h, "/api/publications"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("ledger error status = %d", rec.Code)
	}
}

func TestPublicationsDisabled(t *testing.T) {
	rec := get(t, newTestServer(t, staticRuns{}, nil), "/api/publications")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, staticRuns{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
