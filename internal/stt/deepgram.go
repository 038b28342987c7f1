package stt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// DeepgramClient streams PCM audio to the Deepgram realtime endpoint over
// a WebSocket and decodes the JSON result events it sends back.
type DeepgramClient struct {
	apiKey     string
	baseURL    string // e.g. "wss://api.deepgram.com", overridable for tests
	model      string
	language   string
	sampleRate int

	state atomic.Int32

	writeMu sync.Mutex
	conn    *websocket.Conn

	results   chan StreamResult
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// DeepgramConfig configures a single streaming connection.
type DeepgramConfig struct {
	APIKey     string
	BaseURL    string // defaults to wss://api.deepgram.com
	Model      string // defaults to nova-2
	Language   string
	SampleRate int // defaults to 16000
}

func NewDeepgramClient(cfg DeepgramConfig) (*DeepgramClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMisconfiguredCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.deepgram.com"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &DeepgramClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		language:   cfg.Language,
		sampleRate: cfg.SampleRate,
		results:    make(chan StreamResult, 50),
		errs:       make(chan error, 4),
		done:       make(chan struct{}),
	}, nil
}

func (c *DeepgramClient) State() State { return State(c.state.Load()) }

func (c *DeepgramClient) endpoint() string {
	q := url.Values{}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", c.sampleRate))
	q.Set("channels", "1")
	q.Set("model", c.model)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	if c.language != "" {
		q.Set("language", c.language)
	}
	return c.baseURL + "/v1/listen?" + q.Encode()
}

// Connect dials the streaming endpoint and starts the receive loop.
func (c *DeepgramClient) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("stt: connect in state %s", c.State())
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+c.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint(), header)
	if err != nil {
		c.state.Store(int32(StateErrored))
		return fmt.Errorf("stt: dial recognition stream: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.state.Store(int32(StateOpen))
	slog.Info("recognition stream open", "model", c.model, "sample_rate", c.sampleRate)

	go c.readLoop(conn)
	return nil
}

// dgEvent is the inbound result envelope. Only the fields we consume.
type dgEvent struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (c *DeepgramClient) readLoop(conn *websocket.Conn) {
	defer close(c.results)
	for {
		var ev dgEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if c.State() == StateClosed {
				return // deliberate shutdown
			}
			c.state.Store(int32(StateErrored))
			select {
			case c.errs <- fmt.Errorf("stt: stream read: %w", err):
			default:
			}
			return
		}
		if ev.Type != "" && ev.Type != "Results" {
			continue
		}
		if len(ev.Channel.Alternatives) == 0 {
			continue
		}
		alt := ev.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		res := StreamResult{Text: alt.Transcript, IsFinal: ev.IsFinal, Confidence: alt.Confidence}
		if res.IsFinal {
			slog.Info("STT final", "text", res.Text, "confidence", res.Confidence)
		}
		select {
		case c.results <- res:
		case <-c.done:
			return
		}
	}
}

// Send writes one PCM frame. Silently drops audio unless the stream is open.
func (c *DeepgramClient) Send(pcm []byte) {
	if c.State() != StateOpen {
		return
	}
	c.writeMu.Lock()
	conn := c.conn
	var err error
	if conn != nil {
		err = conn.WriteMessage(websocket.BinaryMessage, pcm)
	}
	c.writeMu.Unlock()
	if err != nil && c.State() == StateOpen {
		c.state.Store(int32(StateErrored))
		select {
		case c.errs <- fmt.Errorf("stt: stream write: %w", err):
		default:
		}
	}
}

func (c *DeepgramClient) Results() <-chan StreamResult { return c.results }
func (c *DeepgramClient) Errors() <-chan error         { return c.errs }

// Close transitions to Closed and releases the socket. Safe to call more
// than once and before Connect ever completed.
func (c *DeepgramClient) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.writeMu.Lock()
		conn := c.conn
		c.conn = nil
		c.writeMu.Unlock()
		if conn != nil {
			// Ask the service to flush any pending finals before closing.
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			_ = conn.Close()
		}
	})
	return nil
}
