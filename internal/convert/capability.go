// Package convert routes study text to one of three accessible output
// modalities: speech, a sign-language video, or braille.
//
// The Dispatcher owns no conversion logic of its own. Speech, braille and
// sign-video rendering are external capabilities injected at construction;
// the dispatcher validates input, tracks one in-flight conversion per UI
// surface and discards completions that a newer request has superseded.
package convert

import (
	"context"
	"sync"
	"time"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// Utterance is a request to speak text aloud.
type Utterance struct {
	Text   string
	Locale string
	Rate   float64
	Pitch  float64
	Volume float64
}

// DefaultUtterance returns the Arabic voice settings used for study text.
func DefaultUtterance(text string) Utterance {
	return Utterance{Text: text, Locale: "ar-SA", Rate: 0.9, Pitch: 1, Volume: 1}
}

// SpeechEngine speaks text. Speak starts playback and returns without
// waiting for it to finish; ctx bounds the whole playback.
type SpeechEngine interface {
	Available() bool
	Speak(ctx context.Context, u Utterance) (*Playback, error)
}

// Playback is a running utterance. Engines call Finish exactly once when
// the utterance ends, with nil on natural completion.
type Playback struct {
	done   chan struct{}
	once   sync.Once
	err    error
	cancel func()
}

// NewPlayback returns a Playback whose Cancel calls cancel.
func NewPlayback(cancel func()) *Playback {
	if cancel == nil {
		cancel = func() {}
	}
	return &Playback{done: make(chan struct{}), cancel: cancel}
}

// Finish marks the playback ended. Only the first call has an effect.
func (p *Playback) Finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the playback has ended.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err reports why the playback ended. Valid after Done is closed.
func (p *Playback) Err() error { return p.err }

// Cancel silences the engine.
func (p *Playback) Cancel() { p.cancel() }

// Transliterator converts text to braille.
type Transliterator interface {
	ToBraille(ctx context.Context, text string) (string, error)
}

// AssetRef identifies a sign-language clip in an asset store.
type AssetRef string

// AssetStore resolves words to sign-language clips. Lookup is an exact,
// case-sensitive match.
type AssetStore interface {
	Lookup(word string) (AssetRef, bool)
	Fetch(ctx context.Context, ref AssetRef) ([]byte, error)
}

// Concatenator joins clips into one video in the given order.
type Concatenator interface {
	Concatenate(ctx context.Context, clips [][]byte) ([]byte, error)
}

// VideoSink stores a rendered video and returns a URL for it.
type VideoSink interface {
	Put(ctx context.Context, key string, video []byte) (string, error)
}

// VideoCache remembers rendered video URLs by content key.
type VideoCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string, ttl time.Duration) error
}

// Observer receives one call per finished conversion attempt.
type Observer interface {
	ObserveConversion(profile, outcome string, elapsed time.Duration)
}

// Journal persists a record of every conversion attempt.
type Journal interface {
	LogConversion(ctx context.Context, rec model.ConversionRecord) error
}
