package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeRecognizer upgrades connections and replays canned result events.
func fakeRecognizer(t *testing.T, events []string, gotAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, ev := range events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
				return
			}
		}
		// Hold the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func newTestClient(t *testing.T, baseURL string) *DeepgramClient {
	t.Helper()
	c, err := NewDeepgramClient(DeepgramConfig{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewDeepgramClient: %v", err)
	}
	return c
}

func TestDeepgramForwardsResults(t *testing.T) {
	var auth string
	srv := fakeRecognizer(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"we usually","confidence":0.8}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"we usually hack something together","confidence":0.97}]}}`,
	}, &auth)
	defer srv.Close()

	c := newTestClient(t, wsURL(srv))
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.State(); got != StateOpen {
		t.Fatalf("state after connect = %s, want open", got)
	}

	var got []StreamResult
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-c.Results():
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timed out waiting for results, have %d", len(got))
		}
	}
	if auth != "Token test-key" {
		t.Errorf("Authorization header = %q, want %q", auth, "Token test-key")
	}
	if got[0].IsFinal || !got[1].IsFinal {
		t.Errorf("finality flags = %v/%v, want false/true", got[0].IsFinal, got[1].IsFinal)
	}
	if got[1].Text != "we usually hack something together" {
		t.Errorf("final text = %q", got[1].Text)
	}
}

func TestDeepgramSendBeforeConnectDrops(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:0")
	// Must not panic or block: audio outside Open is discarded.
	c.Send([]byte{0x01, 0x02})
	if got := c.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestDeepgramConnectFailure(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("Connect to dead endpoint succeeded")
	}
	if got := c.State(); got != StateErrored {
		t.Errorf("state = %s, want errored", got)
	}
}

func TestDeepgramServerDropSignalsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close() // hang up immediately
	}))
	defer srv.Close()

	c := newTestClient(t, wsURL(srv))
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Fatal("nil error from Errors")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error after server drop")
	}
	if got := c.State(); got != StateErrored {
		t.Errorf("state = %s, want errored", got)
	}
}

func TestDeepgramCloseIdempotent(t *testing.T) {
	srv := fakeRecognizer(t, nil, nil)
	defer srv.Close()

	c := newTestClient(t, wsURL(srv))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	// Closed client drops audio without panicking.
	c.Send([]byte{0x00})
}

func TestDeepgramCloseWithoutConnect(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:0")
	if err := c.Close(); err != nil {
		t.Fatalf("Close before Connect: %v", err)
	}
}

func TestNewDeepgramClientRequiresKey(t *testing.T) {
	if _, err := NewDeepgramClient(DeepgramConfig{}); err != ErrMisconfiguredCredential {
		t.Fatalf("err = %v, want ErrMisconfiguredCredential", err)
	}
}
