package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"aquasense/records"
)

func TestHubBroadcastsObservations(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
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

	obs := records.Observation{PH: 8.5, TDS: 150, Turbidity: 0.5, Temperature: 24, Prediction: "Excellent"}
	hub.Publish(obs)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if msg.Type != ObservationAppended || msg.ID == "" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	var got records.Observation
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("invalid data: %v", err)
	}
	if got != obs {
		t.Fatalf("got %+v, want %+v", got, obs)
	}
}

func TestHubStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	// publishing after shutdown must not block
	hub.Publish(records.Observation{Prediction: "Good"})
}
