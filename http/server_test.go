package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aquasense/assess"
	"aquasense/monitoring"
	"aquasense/records"
)

func TestServerMiddlewareChain(t *testing.T) {
	svc := assess.NewService(&fakePredictor{label: "Good"}, tempStore(t), nil)
	srv := NewServer(DefaultServerConfig(), NewHandlers(svc, nil, nil, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("unexpected CORS origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "client-id" || w.Header().Get(RequestIDHeader) != "client-id" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, w.Header().Get(RequestIDHeader))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Chain(RecoveryMiddleware(zap.NewNop()), TimeoutMiddleware(time.Second))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	handler := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	svc := assess.NewService(&fakePredictor{label: "Good"}, tempStore(t), nil)
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	srv := NewServer(cfg, NewHandlers(svc, nil, nil, nil), nil)

	body := `{"ph":7.2,"tds":300,"turbidity":1.2,"temperature":27}`
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRecordFeedThroughServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := monitoring.NewHub(nil)
	go hub.Run(ctx)

	store := records.WithListener(tempStore(t), hub.Publish)
	svc := assess.NewService(&fakePredictor{label: "Excellent"}, store, nil)
	srv := NewServer(DefaultServerConfig(), NewHandlers(svc, hub, nil, nil), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws/records", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := `{"ph":8.5,"tds":150,"turbidity":0.5,"temperature":24}`
	resp, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg monitoring.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	var obs records.Observation
	if err := json.Unmarshal(msg.Data, &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Prediction != "Excellent" || obs.PH != 8.5 {
		t.Fatalf("unexpected observation: %+v", obs)
	}
}
