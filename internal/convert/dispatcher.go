package convert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

const (
	DefaultMaxSignWords    = 20
	DefaultSignLatency     = 2 * time.Second
	DefaultExternalTimeout = 30 * time.Second
	DefaultURLExpiry       = 24 * time.Hour
	DefaultCacheTTL        = DefaultURLExpiry * 3 / 4
)

// CacheTTLFor returns how long a rendered video URL that expires after
// urlExpiry may be served from cache. A quarter of the lifetime is kept in
// reserve so a cache hit never hands out a URL that is about to lapse.
func CacheTTLFor(urlExpiry time.Duration) time.Duration {
	if urlExpiry <= 0 {
		return DefaultCacheTTL
	}
	return urlExpiry * 3 / 4
}

var errNoClips = errors.New("no sign videos found for any input word")

// Config wires capabilities into a Dispatcher. A nil Speech, Braille or
// Assets makes the matching profile fail with CapabilityUnavailable. With
// Assets set but no Concat or Sink, the hearing profile runs in demo mode:
// it waits SignLatency and returns the word partition without a video.
type Config struct {
	Speech   SpeechEngine
	Braille  Transliterator
	Assets   AssetStore
	Concat   Concatenator
	Sink     VideoSink
	Cache    VideoCache
	Observer Observer
	Journal  Journal

	MaxSignWords    int
	SignLatency     time.Duration
	ExternalTimeout time.Duration
	CacheTTL        time.Duration
}

// Dispatcher runs conversions. Each UI surface has at most one conversion
// whose result counts; starting another supersedes it.
type Dispatcher struct {
	cfg    Config
	events *hub
	seq    atomic.Uint64

	mu       sync.Mutex
	surfaces map[string]*surfaceState
}

type surfaceState struct {
	latest   uint64
	cancel   context.CancelFunc
	playback *Playback
	playing  uint64 // token that started playback
	silence  func()
	status   model.AudioStatus
}

// New creates a Dispatcher. Zero limits fall back to the package defaults.
func New(cfg Config) *Dispatcher {
	if cfg.MaxSignWords <= 0 {
		cfg.MaxSignWords = DefaultMaxSignWords
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = DefaultExternalTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Dispatcher{
		cfg:      cfg,
		events:   newHub(),
		surfaces: make(map[string]*surfaceState),
	}
}

// Convert validates req and runs it for surface. Any conversion already in
// flight for the surface is cancelled and its speech silenced. If this call
// is itself superseded before it completes, it returns StaleResult.
func (d *Dispatcher) Convert(ctx context.Context, surface string, req model.ConversionRequest) (model.ConversionResult, error) {
	start := time.Now()

	if strings.TrimSpace(req.SourceText) == "" {
		err := model.E(model.KindEmptyInput, "convert", nil)
		d.observe(req.Profile, err, start)
		return model.ConversionResult{}, err
	}
	if !req.Profile.Valid() {
		err := model.E(model.KindMissingSelection, "convert", nil)
		d.observe(req.Profile, err, start)
		return model.ConversionResult{}, err
	}

	runCtx, token := d.begin(ctx, surface)
	slog.Debug("conversion started", "surface", surface, "token", token, "profile", req.Profile)
	d.events.publish(Event{Surface: surface, Token: token, Kind: EventStarted, Profile: req.Profile})

	var (
		res model.ConversionResult
		err error
	)
	switch req.Profile {
	case model.ProfileVisual:
		res, err = d.speak(runCtx, surface, token, req.SourceText)
	case model.ProfileHearing:
		res, err = d.sign(runCtx, req.SourceText)
	case model.ProfileBraille:
		res, err = d.braille(runCtx, req.SourceText)
	}
	err = d.finish(surface, token, err)
	d.observe(req.Profile, err, start)
	d.record(ctx, surface, token, req, err)

	switch {
	case err == nil:
		res.Token = token
		ev := Event{Surface: surface, Token: token, Kind: EventCompleted, Profile: req.Profile, Result: &res}
		if res.Audio != nil {
			ev.Status = res.Audio.Status
		}
		d.events.publish(ev)
		return res, nil
	case model.KindOf(err) == model.KindStaleResult:
		slog.Debug("discarded superseded conversion", "surface", surface, "token", token)
	default:
		slog.Warn("conversion failed", "surface", surface, "token", token, "profile", req.Profile, "error", err)
		d.events.publish(Event{Surface: surface, Token: token, Kind: EventFailed, Profile: req.Profile, Err: model.KindOf(err)})
	}
	return model.ConversionResult{}, err
}

// Stop silences speech playing for surface. It reports whether anything
// was playing.
func (d *Dispatcher) Stop(surface string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.surfaces[surface]
	if !ok || st.playback == nil {
		return false
	}
	d.silenceLocked(surface, st)
	d.gcLocked(surface, st)
	return true
}

// Status returns the audio status for surface.
func (d *Dispatcher) Status(surface string) model.AudioStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.surfaces[surface]; ok {
		return st.status
	}
	return model.AudioStopped
}

// Subscribe streams events for surface until the returned func is called.
func (d *Dispatcher) Subscribe(surface string) (<-chan Event, func()) {
	return d.events.subscribe(surface)
}

func (d *Dispatcher) begin(ctx context.Context, surface string) (context.Context, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.surfaces[surface]
	if !ok {
		st = &surfaceState{status: model.AudioStopped}
		d.surfaces[surface] = st
	}
	token := d.seq.Add(1)
	st.latest = token
	if st.cancel != nil {
		st.cancel()
	}
	if st.playback != nil {
		d.silenceLocked(surface, st)
	}
	runCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	return runCtx, token
}

// finish releases the surface slot if token still owns it. A superseded
// token gets StaleResult in place of whatever it produced, and a caller
// context that ended mid-conversion is reported as ExternalFailure.
func (d *Dispatcher) finish(surface string, token uint64, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.surfaces[surface]
	if !ok || st.latest != token {
		if model.KindOf(err) == model.KindStaleResult {
			return err
		}
		return model.E(model.KindStaleResult, "convert", err)
	}
	st.cancel()
	st.cancel = nil
	d.gcLocked(surface, st)
	if model.KindOf(err) == "" && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return model.E(model.KindExternalFailure, "convert", err)
	}
	return err
}

func (d *Dispatcher) silenceLocked(surface string, st *surfaceState) {
	st.silence()
	d.events.publish(Event{
		Surface: surface,
		Token:   st.playing,
		Kind:    EventStopped,
		Profile: model.ProfileVisual,
		Status:  model.AudioStopped,
	})
	st.playback = nil
	st.silence = nil
	st.status = model.AudioStopped
}

func (d *Dispatcher) gcLocked(surface string, st *surfaceState) {
	if st.cancel == nil && st.playback == nil {
		delete(d.surfaces, surface)
	}
}

func (d *Dispatcher) speak(ctx context.Context, surface string, token uint64, text string) (model.ConversionResult, error) {
	eng := d.cfg.Speech
	if eng == nil || !eng.Available() {
		return model.ConversionResult{}, model.E(model.KindCapabilityUnavailable, "convert.speech", nil)
	}

	// Playback outlives the request; only Stop or a newer conversion ends it early.
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pb, err := eng.Speak(playCtx, DefaultUtterance(text))
	if err != nil {
		cancel()
		return model.ConversionResult{}, model.E(model.KindExternalFailure, "convert.speech", err)
	}
	silence := func() {
		pb.Cancel()
		cancel()
	}

	d.mu.Lock()
	st, ok := d.surfaces[surface]
	if !ok || st.latest != token {
		d.mu.Unlock()
		silence()
		return model.ConversionResult{}, model.E(model.KindStaleResult, "convert.speech", nil)
	}
	st.playback = pb
	st.playing = token
	st.silence = silence
	st.status = model.AudioPlaying
	d.mu.Unlock()

	go d.watch(surface, token, pb, cancel)

	return model.ConversionResult{
		Kind:  model.ResultAudio,
		Audio: &model.AudioResult{Status: model.AudioPlaying},
	}, nil
}

// watch waits for playback to end on its own and moves the surface to
// stopped. Playback silenced by Stop or a newer request is already handled.
func (d *Dispatcher) watch(surface string, token uint64, pb *Playback, cancel context.CancelFunc) {
	<-pb.Done()
	cancel()

	d.mu.Lock()
	st, ok := d.surfaces[surface]
	owned := ok && st.playback == pb
	if owned {
		st.playback = nil
		st.silence = nil
		st.status = model.AudioStopped
		d.gcLocked(surface, st)
	}
	d.mu.Unlock()
	if !owned {
		return
	}

	ev := Event{Surface: surface, Token: token, Kind: EventStopped, Profile: model.ProfileVisual, Status: model.AudioStopped}
	if err := pb.Err(); err != nil {
		slog.Warn("speech playback failed", "surface", surface, "token", token, "error", err)
		ev.Kind = EventFailed
		ev.Err = model.KindExternalFailure
	}
	d.events.publish(ev)
}

func (d *Dispatcher) sign(ctx context.Context, text string) (model.ConversionResult, error) {
	if d.cfg.Assets == nil {
		return model.ConversionResult{}, model.E(model.KindCapabilityUnavailable, "convert.sign", nil)
	}
	words := Tokenize(text, d.cfg.MaxSignWords)
	resolved, unresolved, refs := Partition(d.cfg.Assets, words)
	out := &model.SignVideoResult{ResolvedWords: resolved, UnresolvedWords: unresolved}
	res := model.ConversionResult{Kind: model.ResultSignVideo, SignVideo: out}

	if d.cfg.Concat == nil || d.cfg.Sink == nil {
		out.Demo = true
		if err := sleep(ctx, d.cfg.SignLatency); err != nil {
			return model.ConversionResult{}, err
		}
		return res, nil
	}

	if len(refs) == 0 {
		return model.ConversionResult{}, model.E(model.KindExternalFailure, "convert.sign", errNoClips)
	}
	url, err := d.render(ctx, refs)
	if err != nil {
		return model.ConversionResult{}, err
	}
	out.VideoURL = url
	return res, nil
}

func (d *Dispatcher) render(ctx context.Context, refs []AssetRef) (string, error) {
	key := renderKey(refs)
	if d.cfg.Cache != nil {
		url, ok, err := d.cfg.Cache.Get(ctx, key)
		if err != nil {
			slog.Warn("sign video cache lookup failed", "key", key, "error", err)
		} else if ok {
			return url, nil
		}
	}

	fetched := make(map[AssetRef][]byte, len(refs))
	clips := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		clip, ok := fetched[ref]
		if !ok {
			err := d.external(ctx, "convert.sign.fetch", func(ctx context.Context) error {
				var err error
				clip, err = d.cfg.Assets.Fetch(ctx, ref)
				return err
			})
			if err != nil {
				return "", err
			}
			fetched[ref] = clip
		}
		clips = append(clips, clip)
	}

	var video []byte
	err := d.external(ctx, "convert.sign.concat", func(ctx context.Context) error {
		var err error
		video, err = d.cfg.Concat.Concatenate(ctx, clips)
		return err
	})
	if err != nil {
		return "", err
	}

	var url string
	err = d.external(ctx, "convert.sign.store", func(ctx context.Context) error {
		var err error
		url, err = d.cfg.Sink.Put(ctx, "signs/"+key+".mp4", video)
		return err
	})
	if err != nil {
		return "", err
	}

	if d.cfg.Cache != nil {
		if err := d.cfg.Cache.Set(ctx, key, url, d.cfg.CacheTTL); err != nil {
			slog.Warn("sign video cache store failed", "key", key, "error", err)
		}
	}
	return url, nil
}

func (d *Dispatcher) braille(ctx context.Context, text string) (model.ConversionResult, error) {
	if d.cfg.Braille == nil {
		return model.ConversionResult{}, model.E(model.KindCapabilityUnavailable, "convert.braille", nil)
	}
	var out string
	err := d.external(ctx, "convert.braille", func(ctx context.Context) error {
		var err error
		out, err = d.cfg.Braille.ToBraille(ctx, text)
		return err
	})
	if err != nil {
		return model.ConversionResult{}, err
	}
	return model.ConversionResult{
		Kind:    model.ResultBraille,
		Braille: &model.BrailleResult{Text: out},
	}, nil
}

// external runs fn under the external-call timeout and classifies any
// failure as ExternalFailure.
func (d *Dispatcher) external(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ExternalTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return model.E(model.KindExternalFailure, op, err)
	}
	return nil
}

func (d *Dispatcher) observe(profile model.Profile, err error, start time.Time) {
	if d.cfg.Observer == nil {
		return
	}
	label := string(profile)
	if !profile.Valid() {
		label = "none"
	}
	d.cfg.Observer.ObserveConversion(label, outcome(err), time.Since(start))
}

func (d *Dispatcher) record(ctx context.Context, surface string, token uint64, req model.ConversionRequest, err error) {
	if d.cfg.Journal == nil {
		return
	}
	rec := model.ConversionRecord{
		Surface:   surface,
		Token:     token,
		Profile:   req.Profile,
		InputLen:  utf8.RuneCountInString(req.SourceText),
		Outcome:   outcome(err),
		CreatedAt: time.Now(),
	}
	if err := d.cfg.Journal.LogConversion(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("failed to log conversion", "surface", surface, "token", token, "error", err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := model.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func renderKey(refs []AssetRef) string {
	h := sha256.New()
	for _, r := range refs {
		h.Write([]byte(r))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
