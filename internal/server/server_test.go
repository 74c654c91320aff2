package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/instrument"
	"github.com/tjfontaine/callscope/internal/record"
	"github.com/tjfontaine/callscope/internal/storage/memory"
)

// storeSink flushes recordings into a RecordingStore, standing in for the
// runtime's sink wiring.
type storeSink struct {
	store *memory.Store
}

func (s *storeSink) Flush(ctx context.Context, rec *domain.Recording) error {
	return s.store.SaveRecording(ctx, rec)
}

func (s *storeSink) Name() string { return "memory" }
func (s *storeSink) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	rec := record.NewRecorder(testLogger())
	hooks := instrument.NewRegistry(rec, testLogger())
	store := memory.New()

	srv := New(Options{
		App:      "orders-api",
		Recorder: rec,
		Hooks:    hooks,
		Store:    store,
		Sink:     &storeSink{store: store},
		Logger:   testLogger(),
	})
	return srv, store
}

func doRequest(srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestServer_RecordStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(srv, http.MethodGet, "/_appmap/record", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	var status statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.Enabled {
		t.Error("Enabled = true before any session started")
	}

	if rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start status code = %d, want 200", rr.Code)
	}

	rr = doRequest(srv, http.MethodGet, "/_appmap/record", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !status.Enabled {
		t.Error("Enabled = false while a session is active")
	}
}

func TestServer_StartConflict(t *testing.T) {
	srv, _ := newTestServer(t)

	if rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("first start status code = %d, want 200", rr.Code)
	}

	rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("second start status code = %d, want 409", rr.Code)
	}
	var errResp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errResp.Error != domain.ErrSessionActive.Error() {
		t.Errorf("error = %q, want %q", errResp.Error, domain.ErrSessionActive.Error())
	}
}

func TestServer_StartRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", rr.Code)
	}
}

func TestServer_StopWithoutSession(t *testing.T) {
	srv, _ := newTestServer(t)

	if rr := doRequest(srv, http.MethodDelete, "/_appmap/record/stop", ""); rr.Code != http.StatusNotFound {
		t.Errorf("stop status code = %d, want 404", rr.Code)
	}
	if rr := doRequest(srv, http.MethodPost, "/_appmap/record/checkpoint", ""); rr.Code != http.StatusNotFound {
		t.Errorf("checkpoint status code = %d, want 404", rr.Code)
	}
}

func TestServer_RemoteRecordingRoundTrip(t *testing.T) {
	srv, store := newTestServer(t)

	body := `{"name": "checkout flow"}`
	if rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", body); rr.Code != http.StatusOK {
		t.Fatalf("start status code = %d, want 200", rr.Code)
	}

	// Traffic through the demo routes lands in the active session.
	if rr := doRequest(srv, http.MethodGet, "/demo/fib?n=3", ""); rr.Code != http.StatusOK {
		t.Fatalf("demo status code = %d, want 200", rr.Code)
	}

	rr := doRequest(srv, http.MethodPost, "/_appmap/record/checkpoint", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("checkpoint status code = %d, want 200", rr.Code)
	}
	snap, err := appmap.Decode(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding checkpoint document: %v", err)
	}
	if len(snap.Events) == 0 {
		t.Fatal("checkpoint document has no events")
	}

	rr = doRequest(srv, http.MethodDelete, "/_appmap/record/stop", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status code = %d, want 200", rr.Code)
	}
	final, err := appmap.Decode(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding stop document: %v", err)
	}
	if final.Metadata.Name != "checkout flow" {
		t.Errorf("recording name = %q, want %q", final.Metadata.Name, "checkout flow")
	}
	if final.Metadata.App != "orders-api" {
		t.Errorf("recording app = %q, want %q", final.Metadata.App, "orders-api")
	}
	if len(final.Events) < len(snap.Events) {
		t.Errorf("final events = %d, want at least the checkpoint's %d", len(final.Events), len(snap.Events))
	}
	if len(final.ClassMap) == 0 {
		t.Error("stop document has no class map")
	}

	// The stop also persisted the recording through the sink.
	summaries, err := store.ListRecordings(context.Background(), ports.ListOptions{})
	if err != nil {
		t.Fatalf("ListRecordings() error = %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("stored recordings = %d, want 1", len(summaries))
	}
	if summaries[0].Name != "checkout flow" {
		t.Errorf("stored name = %q, want %q", summaries[0].Name, "checkout flow")
	}
}

func TestServer_RecordingsEndpoints(t *testing.T) {
	srv, store := newTestServer(t)

	rec := &domain.Recording{
		ID:       "rec_list",
		Metadata: domain.Metadata{Name: "seeded", App: "orders-api"},
		Events: []*domain.Event{
			{ID: 1, Kind: domain.KindCall, ThreadID: 7},
			{ID: 2, Kind: domain.KindReturn, ThreadID: 7, ParentID: 1},
		},
	}
	if err := store.SaveRecording(context.Background(), rec); err != nil {
		t.Fatalf("SaveRecording() error = %v", err)
	}

	rr := doRequest(srv, http.MethodGet, "/recordings", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status code = %d, want 200", rr.Code)
	}
	var list recordingListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list.Recordings) != 1 || list.Recordings[0].ID != "rec_list" {
		t.Fatalf("list = %+v, want the single seeded recording", list.Recordings)
	}

	rr = doRequest(srv, http.MethodGet, "/recordings/rec_list", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status code = %d, want 200", rr.Code)
	}
	doc, err := appmap.Decode(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding fetched document: %v", err)
	}
	if len(doc.Events) != 2 {
		t.Errorf("fetched events = %d, want 2", len(doc.Events))
	}

	if rr := doRequest(srv, http.MethodGet, "/recordings/rec_missing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get missing status code = %d, want 404", rr.Code)
	}

	if rr := doRequest(srv, http.MethodDelete, "/recordings/rec_list", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete status code = %d, want 204", rr.Code)
	}
	if rr := doRequest(srv, http.MethodGet, "/recordings/rec_list", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status code = %d, want 404", rr.Code)
	}
}

func TestServer_NoStoreDisablesRecordings(t *testing.T) {
	rec := record.NewRecorder(testLogger())
	srv := New(Options{Recorder: rec, Logger: testLogger()})

	if rr := doRequest(srv, http.MethodGet, "/recordings", ""); rr.Code != http.StatusNotFound {
		t.Errorf("list status code = %d with no store, want 404", rr.Code)
	}
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "ok") {
		t.Errorf("body = %q, want it to report ok", rr.Body.String())
	}
}

func TestServer_DemoWork(t *testing.T) {
	srv, _ := newTestServer(t)

	if rr := doRequest(srv, http.MethodPost, "/_appmap/record/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start status code = %d, want 200", rr.Code)
	}
	if rr := doRequest(srv, http.MethodGet, "/demo/work?steps=3&pause_ms=0", ""); rr.Code != http.StatusOK {
		t.Fatalf("work status code = %d, want 200", rr.Code)
	}

	rr := doRequest(srv, http.MethodDelete, "/_appmap/record/stop", "")
	doc, err := appmap.Decode(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decoding stop document: %v", err)
	}

	// One request pair wrapping three step pairs.
	if len(doc.Events) != 8 {
		t.Errorf("events = %d, want 8", len(doc.Events))
	}
}
