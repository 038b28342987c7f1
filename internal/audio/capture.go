package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrPermissionDenied means the OS refused microphone access. The
// interviewer can retry after granting permission.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrDeviceUnavailable means no usable input device exists.
var ErrDeviceUnavailable = errors.New("audio: no input device available")

// ErrAlreadyActive means another capture session holds the microphone.
var ErrAlreadyActive = errors.New("audio: a capture session is already active")

// Config sets the capture format. 16 kHz mono with 4096-sample buffers
// (~256 ms per callback) matches what the recognition stream expects.
type Config struct {
	SampleRate      int
	FramesPerBuffer int
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = 4096
	}
	return c
}

// device is the minimal surface of a platform input stream; the real
// implementation wraps PortAudio.
type device interface {
	Start() error
	Read() error // fills the buffer passed at open time
	Stop() error
	Close() error
}

// openDevice acquires the platform device. Swapped in tests.
var openDevice = openPortAudio

// active guards the microphone: at most one session per process.
var active atomic.Bool

// Session owns the microphone stream for one recording lifetime. It is
// created by Acquire and destroyed by Stop; buffers are pushed to the
// callback until then.
type Session struct {
	dev       device
	buf       []float32
	startedAt time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StartedAt is the instant the device began delivering samples.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Acquire opens the default input device and starts pushing sample
// buffers to onBuffer. The callback receives a fresh slice each time and
// runs on the capture goroutine; it must not block for long. onError,
// which may be nil, is invoked on its own goroutine if a device read
// fails mid-capture; the session delivers no further buffers after that
// and the caller is expected to Stop it.
func Acquire(cfg Config, onBuffer func([]float32), onError func(error)) (*Session, error) {
	cfg = cfg.withDefaults()

	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}

	buf := make([]float32, cfg.FramesPerBuffer)
	dev, err := openDevice(cfg, buf)
	if err != nil {
		active.Store(false)
		return nil, err
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		active.Store(false)
		return nil, mapDeviceError(err)
	}

	s := &Session{
		dev:       dev,
		buf:       buf,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	slog.Info("audio capture started", "sample_rate", cfg.SampleRate, "frames_per_buffer", cfg.FramesPerBuffer)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			default:
			}
			if err := s.dev.Read(); err != nil {
				select {
				case <-s.done: // expected during teardown
				default:
					slog.Error("audio read error", "err", err)
					if onError != nil {
						// On its own goroutine so the handler may call
						// Stop, which waits for this one.
						go onError(fmt.Errorf("audio: device read: %w", err))
					}
				}
				return
			}
			cp := make([]float32, len(s.buf))
			copy(cp, s.buf)
			onBuffer(cp)
		}
	}()

	return s, nil
}

// Stop disconnects the stream, waits for the capture goroutine, and
// releases the device. Idempotent; safe to call concurrently with an
// in-flight buffer callback.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.dev.Stop() // unblocks a pending Read
		s.wg.Wait()
		_ = s.dev.Close()
		active.Store(false)
		slog.Info("audio capture stopped")
	})
}

// --- PortAudio backend ---

type paDevice struct {
	stream *portaudio.Stream
}

func openPortAudio(cfg Config, buf []float32) (device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: init: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, mapDeviceError(err)
	}
	return &paDevice{stream: stream}, nil
}

func (d *paDevice) Start() error { return d.stream.Start() }
func (d *paDevice) Read() error  { return d.stream.Read() }
func (d *paDevice) Stop() error  { return d.stream.Stop() }

func (d *paDevice) Close() error {
	err := d.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// mapDeviceError folds platform error strings into the capture taxonomy.
func mapDeviceError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no default input") ||
		strings.Contains(msg, "invalid device") ||
		strings.Contains(msg, "device unavailable"):
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	default:
		return fmt.Errorf("audio: open input device: %w", err)
	}
}
