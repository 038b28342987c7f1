package session

import (
	"context"

	"github.com/pmflab/interviewd/internal/stt"
)

// DeepgramFactory builds Deepgram recognition clients. When the config
// carries no API key, fetchKey (typically the backend's credential
// endpoint) is consulted at Start time so a rotated key is picked up
// without a restart.
func DeepgramFactory(cfg stt.DeepgramConfig, fetchKey func(ctx context.Context) (string, error)) ClientFactory {
	return func(ctx context.Context) (stt.Client, error) {
		c := cfg
		if c.APIKey == "" && fetchKey != nil {
			key, err := fetchKey(ctx)
			if err != nil {
				return nil, err
			}
			c.APIKey = key
		}
		return stt.NewDeepgramClient(c)
	}
}

// GoogleFactory builds Cloud Speech recognition clients. Credentials come
// from the ambient service account, so there is no key to resolve.
func GoogleFactory(language string, sampleRate int) ClientFactory {
	return func(ctx context.Context) (stt.Client, error) {
		return stt.NewGoogleClient(ctx, language, sampleRate)
	}
}
