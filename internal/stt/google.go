package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// GoogleClient is the alternate recognition backend, streaming to the
// Google Cloud Speech API instead of a WebSocket endpoint. It satisfies
// the same Client contract: one connection per recording session.
type GoogleClient struct {
	client     *speech.Client
	language   string
	sampleRate int

	state atomic.Int32

	pw        *io.PipeWriter
	results   chan StreamResult
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func NewGoogleClient(ctx context.Context, language string, sampleRate int) (*GoogleClient, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("stt: create speech client: %w", err)
	}
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &GoogleClient{
		client:     client,
		language:   language,
		sampleRate: sampleRate,
		results:    make(chan StreamResult, 50),
		errs:       make(chan error, 4),
		done:       make(chan struct{}),
	}, nil
}

func (c *GoogleClient) State() State { return State(c.state.Load()) }

// Connect opens the streaming recognize RPC and sends the config frame.
func (c *GoogleClient) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("stt: connect in state %s", c.State())
	}

	stream, err := c.client.StreamingRecognize(ctx)
	if err != nil {
		c.state.Store(int32(StateErrored))
		return fmt.Errorf("stt: start streaming: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(c.sampleRate),
					LanguageCode:               c.language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		c.state.Store(int32(StateErrored))
		return fmt.Errorf("stt: send config: %w", err)
	}

	pr, pw := io.Pipe()
	c.pw = pw
	c.state.Store(int32(StateOpen))
	slog.Info("recognition stream open", "backend", "google", "language", c.language)

	// Feed audio from the pipe into the RPC.
	go func() {
		buf := make([]byte, 3200) // 100ms of 16kHz 16-bit mono
		for {
			n, err := pr.Read(buf)
			if err != nil {
				_ = stream.CloseSend()
				return
			}
			if n > 0 {
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: buf[:n],
					},
				}); err != nil {
					slog.Error("send audio error", "err", err)
					return
				}
			}
		}
	}()

	// Receive results.
	go func() {
		defer close(c.results)
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				if c.State() == StateClosed {
					return
				}
				c.state.Store(int32(StateErrored))
				select {
				case c.errs <- fmt.Errorf("stt: recv: %w", err):
				default:
				}
				return
			}
			for _, result := range resp.Results {
				if len(result.Alternatives) == 0 {
					continue
				}
				alt := result.Alternatives[0]
				res := StreamResult{
					Text:       alt.Transcript,
					IsFinal:    result.IsFinal,
					Confidence: float64(alt.Confidence),
				}
				if res.IsFinal {
					slog.Info("STT final", "text", res.Text, "confidence", alt.Confidence)
				}
				select {
				case c.results <- res:
				case <-c.done:
					return
				}
			}
		}
	}()

	return nil
}

// Send writes one PCM frame into the feeder pipe. Dropped unless open.
func (c *GoogleClient) Send(pcm []byte) {
	if c.State() != StateOpen {
		return
	}
	if _, err := c.pw.Write(pcm); err != nil && c.State() == StateOpen {
		c.state.Store(int32(StateErrored))
		select {
		case c.errs <- fmt.Errorf("stt: stream write: %w", err):
		default:
		}
	}
}

func (c *GoogleClient) Results() <-chan StreamResult { return c.results }
func (c *GoogleClient) Errors() <-chan error         { return c.errs }

// Close ends the audio feed and releases the API client. Idempotent.
func (c *GoogleClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		if c.pw != nil {
			_ = c.pw.Close()
		}
		err = c.client.Close()
	})
	return err
}
