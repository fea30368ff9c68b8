package convert_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tamkeen-edu/tamkeen/internal/cache"
	"github.com/tamkeen-edu/tamkeen/internal/convert"
	"github.com/tamkeen-edu/tamkeen/internal/convert/braille"
	"github.com/tamkeen-edu/tamkeen/internal/convert/signvideo"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

type fakeSpeech struct {
	available bool
	err       error

	mu        sync.Mutex
	spoken    []convert.Utterance
	playbacks []*convert.Playback
	cancelled int
}

func (f *fakeSpeech) Available() bool { return f.available }

func (f *fakeSpeech) Speak(_ context.Context, u convert.Utterance) (*convert.Playback, error) {
	if f.err != nil {
		return nil, f.err
	}
	var pb *convert.Playback
	pb = convert.NewPlayback(func() {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
		pb.Finish(nil)
	})
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.playbacks = append(f.playbacks, pb)
	f.mu.Unlock()
	return pb, nil
}

func (f *fakeSpeech) last() *convert.Playback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playbacks[len(f.playbacks)-1]
}

func (f *fakeSpeech) cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type transliteratorFunc func(ctx context.Context, text string) (string, error)

func (fn transliteratorFunc) ToBraille(ctx context.Context, text string) (string, error) {
	return fn(ctx, text)
}

type sourceFunc func(ctx context.Context, ref convert.AssetRef) ([]byte, error)

func (fn sourceFunc) Fetch(ctx context.Context, ref convert.AssetRef) ([]byte, error) {
	return fn(ctx, ref)
}

type concatFunc func(ctx context.Context, clips [][]byte) ([]byte, error)

func (fn concatFunc) Concatenate(ctx context.Context, clips [][]byte) ([]byte, error) {
	return fn(ctx, clips)
}

type sinkFunc func(ctx context.Context, key string, video []byte) (string, error)

func (fn sinkFunc) Put(ctx context.Context, key string, video []byte) (string, error) {
	return fn(ctx, key, video)
}

type recorder struct {
	mu       sync.Mutex
	outcomes []string
	records  []model.ConversionRecord
}

func (r *recorder) ObserveConversion(profile, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, profile+":"+outcome)
}

func (r *recorder) LogConversion(_ context.Context, rec model.ConversionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func hearing(text string) model.ConversionRequest {
	return model.ConversionRequest{SourceText: text, Profile: model.ProfileHearing}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func nextEvent(t *testing.T, ch <-chan convert.Event) convert.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return convert.Event{}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"punctuation stripped", "مرحبا، كيف حالك? نعم.لا", 20, []string{"مرحبا،", "كيف", "حالك", "نعم", "لا"}},
		{"all listed marks", "a.b,c!d?e;f:g", 20, []string{"a", "b", "c", "d", "e", "f", "g"}},
		{"empty tokens dropped", " ... ,, ", 20, nil},
		{"truncated", "1 2 3 4 5", 3, []string{"1", "2", "3"}},
		{"no limit", "1 2 3", 0, []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convert.Tokenize(tt.text, tt.limit)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestHearingScenario(t *testing.T) {
	d := convert.New(convert.Config{
		Assets: &signvideo.Library{Table: signvideo.NewTable(map[string]string{
			"مرحبا": "hello.mp4",
			"شكرا":  "thanks.mp4",
		})},
	})

	res, err := d.Convert(context.Background(), "tab", hearing("مرحبا شكرا xyz"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Kind != model.ResultSignVideo || res.SignVideo == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !slices.Equal(res.SignVideo.ResolvedWords, []string{"مرحبا", "شكرا"}) {
		t.Errorf("resolved = %q", res.SignVideo.ResolvedWords)
	}
	if !slices.Equal(res.SignVideo.UnresolvedWords, []string{"xyz"}) {
		t.Errorf("unresolved = %q", res.SignVideo.UnresolvedWords)
	}
	if !res.SignVideo.Demo {
		t.Error("expected demo placeholder without a renderer")
	}
	if res.Token == 0 {
		t.Error("result carries no token")
	}
}

func TestHearingPartitionIsExhaustive(t *testing.T) {
	d := convert.New(convert.Config{Assets: &signvideo.Library{Table: signvideo.DefaultTable()}})
	texts := []string{
		"مرحبا",
		"السلام عليكم، كيف حالك؟ نعم نعم لا xyz",
		"شكرا! من فضلك: " + strings.Repeat("كلمة مرحبا ", 15),
		"Hello, hello. مرحبا;مرحبا",
	}
	for _, text := range texts {
		res, err := d.Convert(context.Background(), "tab", hearing(text))
		if err != nil {
			t.Fatalf("Convert(%q): %v", text, err)
		}
		tokens := convert.Tokenize(text, convert.DefaultMaxSignWords)
		sv := res.SignVideo
		if len(sv.ResolvedWords)+len(sv.UnresolvedWords) != len(tokens) {
			t.Errorf("%q: %d+%d words, want %d", text, len(sv.ResolvedWords), len(sv.UnresolvedWords), len(tokens))
			continue
		}
		// Merge back in order: every token must be the next word of exactly one side.
		ri, ui := 0, 0
		for _, tok := range tokens {
			_, known := signvideo.DefaultTable().Lookup(tok)
			switch {
			case known && ri < len(sv.ResolvedWords) && sv.ResolvedWords[ri] == tok:
				ri++
			case !known && ui < len(sv.UnresolvedWords) && sv.UnresolvedWords[ui] == tok:
				ui++
			default:
				t.Errorf("%q: token %q out of order or misclassified", text, tok)
			}
		}
	}
}

func TestHearingTruncatesToMaxWords(t *testing.T) {
	d := convert.New(convert.Config{
		Assets:       &signvideo.Library{Table: signvideo.DefaultTable()},
		MaxSignWords: 3,
	})
	res, err := d.Convert(context.Background(), "tab", hearing("نعم لا كيف حالك مرحبا"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := len(res.SignVideo.ResolvedWords) + len(res.SignVideo.UnresolvedWords); got != 3 {
		t.Errorf("got %d words, want 3", got)
	}
}

func TestValidation(t *testing.T) {
	obs := &recorder{}
	d := convert.New(convert.Config{Braille: braille.Table{}, Observer: obs})
	tests := []struct {
		name string
		req  model.ConversionRequest
		want error
	}{
		{"empty text", model.ConversionRequest{SourceText: "", Profile: model.ProfileBraille}, model.ErrEmptyInput},
		{"blank text", model.ConversionRequest{SourceText: " \n\t", Profile: model.ProfileBraille}, model.ErrEmptyInput},
		{"empty text wins over missing profile", model.ConversionRequest{}, model.ErrEmptyInput},
		{"missing profile", model.ConversionRequest{SourceText: "نص"}, model.ErrMissingSelection},
		{"unknown profile", model.ConversionRequest{SourceText: "نص", Profile: "tactile"}, model.ErrMissingSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Convert(context.Background(), "tab", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
	if len(obs.outcomes) != len(tests) || obs.outcomes[3] != "none:missing_selection" {
		t.Errorf("observer saw %q", obs.outcomes)
	}
}

func TestBraille(t *testing.T) {
	t.Run("success keeps text verbatim", func(t *testing.T) {
		var got string
		d := convert.New(convert.Config{Braille: transliteratorFunc(func(_ context.Context, text string) (string, error) {
			got = text
			return "⠍⠗⠱⠃⠁", nil
		})})
		res, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "  مرحبا  ", Profile: model.ProfileBraille})
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		if got != "  مرحبا  " {
			t.Errorf("transliterator received %q", got)
		}
		if res.Kind != model.ResultBraille || res.Braille.Text != "⠍⠗⠱⠃⠁" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("missing capability", func(t *testing.T) {
		d := convert.New(convert.Config{})
		_, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileBraille})
		if !errors.Is(err, model.ErrCapabilityUnavailable) {
			t.Errorf("got %v, want CapabilityUnavailable", err)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		boom := errors.New("boom")
		d := convert.New(convert.Config{Braille: transliteratorFunc(func(context.Context, string) (string, error) {
			return "", boom
		})})
		_, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileBraille})
		if !errors.Is(err, model.ErrExternalFailure) || !errors.Is(err, boom) {
			t.Errorf("got %v, want ExternalFailure wrapping boom", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		d := convert.New(convert.Config{
			ExternalTimeout: 10 * time.Millisecond,
			Braille: transliteratorFunc(func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
		})
		_, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileBraille})
		if !errors.Is(err, model.ErrExternalFailure) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("got %v, want ExternalFailure on deadline", err)
		}
	})
}

func TestSpeechUnavailable(t *testing.T) {
	for name, eng := range map[string]convert.SpeechEngine{
		"nil":         nil,
		"unavailable": &fakeSpeech{available: false},
	} {
		t.Run(name, func(t *testing.T) {
			d := convert.New(convert.Config{Speech: eng})
			_, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileVisual})
			if !errors.Is(err, model.ErrCapabilityUnavailable) {
				t.Errorf("got %v, want CapabilityUnavailable", err)
			}
		})
	}
}

func TestSpeechStartFailure(t *testing.T) {
	d := convert.New(convert.Config{Speech: &fakeSpeech{available: true, err: errors.New("no voice")}})
	_, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileVisual})
	if !errors.Is(err, model.ErrExternalFailure) {
		t.Errorf("got %v, want ExternalFailure", err)
	}
	if st := d.Status("tab"); st != model.AudioStopped {
		t.Errorf("status = %q, want stopped", st)
	}
}

func TestSpeechLifecycle(t *testing.T) {
	eng := &fakeSpeech{available: true}
	d := convert.New(convert.Config{Speech: eng})
	events, unsubscribe := d.Subscribe("tab")
	defer unsubscribe()

	res, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "مرحبا", Profile: model.ProfileVisual})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Kind != model.ResultAudio || res.Audio.Status != model.AudioPlaying {
		t.Fatalf("unexpected result %+v", res)
	}
	if u := eng.spoken[0]; u.Locale != "ar-SA" || u.Rate != 0.9 || u.Pitch != 1 || u.Volume != 1 {
		t.Errorf("unexpected utterance %+v", u)
	}
	if d.Status("tab") != model.AudioPlaying {
		t.Errorf("status = %q, want playing", d.Status("tab"))
	}

	if ev := nextEvent(t, events); ev.Kind != convert.EventStarted {
		t.Errorf("first event %q, want started", ev.Kind)
	}
	if ev := nextEvent(t, events); ev.Kind != convert.EventCompleted || ev.Status != model.AudioPlaying {
		t.Errorf("second event %+v, want completed/playing", ev)
	}

	eng.last().Finish(nil)
	ev := nextEvent(t, events)
	if ev.Kind != convert.EventStopped || ev.Token != res.Token {
		t.Errorf("after natural end got %+v, want stopped for token %d", ev, res.Token)
	}
	waitFor(t, "stopped status", func() bool { return d.Status("tab") == model.AudioStopped })
}

func TestSpeechStop(t *testing.T) {
	eng := &fakeSpeech{available: true}
	d := convert.New(convert.Config{Speech: eng})

	if d.Stop("tab") {
		t.Error("Stop reported playback on an idle surface")
	}
	if _, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileVisual}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !d.Stop("tab") {
		t.Error("Stop found nothing playing")
	}
	if eng.cancels() != 1 {
		t.Errorf("engine cancelled %d times, want 1", eng.cancels())
	}
	if d.Status("tab") != model.AudioStopped {
		t.Errorf("status = %q, want stopped", d.Status("tab"))
	}
}

func TestSpeechPlaybackError(t *testing.T) {
	eng := &fakeSpeech{available: true}
	d := convert.New(convert.Config{Speech: eng})
	events, unsubscribe := d.Subscribe("tab")
	defer unsubscribe()

	if _, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileVisual}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	nextEvent(t, events)
	nextEvent(t, events)

	eng.last().Finish(errors.New("audio device lost"))
	ev := nextEvent(t, events)
	if ev.Kind != convert.EventFailed || ev.Err != model.KindExternalFailure || ev.Status != model.AudioStopped {
		t.Errorf("got %+v, want failed/external_failure/stopped", ev)
	}
}

func TestNewConversionSilencesSpeech(t *testing.T) {
	eng := &fakeSpeech{available: true}
	d := convert.New(convert.Config{Speech: eng, Braille: braille.Table{}})

	if _, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileVisual}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if _, err := d.Convert(context.Background(), "other", model.ConversionRequest{SourceText: "x", Profile: model.ProfileBraille}); err != nil {
		t.Fatalf("Convert on other surface: %v", err)
	}
	if eng.cancels() != 0 {
		t.Fatal("a conversion on another surface silenced speech")
	}

	if _, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "x", Profile: model.ProfileBraille}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if eng.cancels() != 1 {
		t.Errorf("engine cancelled %d times, want 1", eng.cancels())
	}
	if d.Status("tab") != model.AudioStopped {
		t.Errorf("status = %q, want stopped", d.Status("tab"))
	}
}

func TestSupersededConversionIsStale(t *testing.T) {
	d := convert.New(convert.Config{
		Assets:      &signvideo.Library{Table: signvideo.DefaultTable()},
		Braille:     braille.Table{},
		SignLatency: time.Minute,
	})
	events, unsubscribe := d.Subscribe("tab")
	defer unsubscribe()

	errc := make(chan error, 1)
	go func() {
		_, err := d.Convert(context.Background(), "tab", hearing("مرحبا"))
		errc <- err
	}()
	first := nextEvent(t, events)
	if first.Kind != convert.EventStarted {
		t.Fatalf("expected started, got %q", first.Kind)
	}

	res, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: "نعم", Profile: model.ProfileBraille})
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if res.Token <= first.Token {
		t.Errorf("token %d not greater than superseded %d", res.Token, first.Token)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, model.ErrStaleResult) {
			t.Errorf("superseded call returned %v, want StaleResult", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded conversion was not cancelled")
	}
}

func TestCallerDeadlineIsExternalFailure(t *testing.T) {
	d := convert.New(convert.Config{
		Assets:      &signvideo.Library{Table: signvideo.DefaultTable()},
		SignLatency: time.Second,
	})
	events, unsubscribe := d.Subscribe("tab")
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Convert(ctx, "tab", hearing("مرحبا xyz"))
	if !errors.Is(err, model.ErrExternalFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want ExternalFailure wrapping the deadline", err)
	}

	if ev := nextEvent(t, events); ev.Kind != convert.EventStarted {
		t.Fatalf("expected started, got %q", ev.Kind)
	}
	if ev := nextEvent(t, events); ev.Kind != convert.EventFailed || ev.Err != model.KindExternalFailure {
		t.Errorf("failure event = %+v", ev)
	}
}

func TestRenderPipeline(t *testing.T) {
	var (
		mu      sync.Mutex
		fetches []convert.AssetRef
		puts    int
	)
	lib := &signvideo.Library{
		Table: signvideo.NewTable(map[string]string{"مرحبا": "hello.mp4", "شكرا": "thanks.mp4"}),
		Source: sourceFunc(func(_ context.Context, ref convert.AssetRef) ([]byte, error) {
			mu.Lock()
			fetches = append(fetches, ref)
			mu.Unlock()
			return []byte("[" + string(ref) + "]"), nil
		}),
	}
	concat := concatFunc(func(_ context.Context, clips [][]byte) ([]byte, error) {
		var b strings.Builder
		for _, c := range clips {
			b.Write(c)
		}
		return []byte(b.String()), nil
	})
	var stored string
	sink := sinkFunc(func(_ context.Context, key string, video []byte) (string, error) {
		puts++
		stored = string(video)
		return "https://cdn.example/" + key, nil
	})
	d := convert.New(convert.Config{Assets: lib, Concat: concat, Sink: sink, Cache: cache.NewMemory()})

	res, err := d.Convert(context.Background(), "tab", hearing("مرحبا xyz شكرا مرحبا"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.SignVideo.Demo || !strings.HasPrefix(res.SignVideo.VideoURL, "https://cdn.example/signs/") {
		t.Errorf("unexpected video result %+v", res.SignVideo)
	}
	if stored != "[hello.mp4][thanks.mp4][hello.mp4]" {
		t.Errorf("clips joined as %q", stored)
	}
	if len(fetches) != 2 {
		t.Errorf("fetched %d clips, want 2 (duplicates reused)", len(fetches))
	}

	again, err := d.Convert(context.Background(), "tab", hearing("مرحبا, شكرا! مرحبا"))
	if err != nil {
		t.Fatalf("second Convert: %v", err)
	}
	if again.SignVideo.VideoURL != res.SignVideo.VideoURL || puts != 1 {
		t.Errorf("cache miss: url %q, %d uploads", again.SignVideo.VideoURL, puts)
	}
}

func TestRenderFailures(t *testing.T) {
	table := signvideo.NewTable(map[string]string{"مرحبا": "hello.mp4"})
	okSource := sourceFunc(func(context.Context, convert.AssetRef) ([]byte, error) { return []byte("x"), nil })
	okConcat := concatFunc(func(_ context.Context, c [][]byte) ([]byte, error) { return c[0], nil })
	okSink := sinkFunc(func(context.Context, string, []byte) (string, error) { return "u", nil })
	boom := errors.New("boom")

	tests := []struct {
		name   string
		text   string
		source sourceFunc
		concat concatFunc
		sink   sinkFunc
	}{
		{"no resolved words", "xyz", okSource, okConcat, okSink},
		{"fetch fails", "مرحبا", func(context.Context, convert.AssetRef) ([]byte, error) { return nil, boom }, okConcat, okSink},
		{"concat fails", "مرحبا", okSource, func(context.Context, [][]byte) ([]byte, error) { return nil, boom }, okSink},
		{"store fails", "مرحبا", okSource, okConcat, func(context.Context, string, []byte) (string, error) { return "", boom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := convert.New(convert.Config{
				Assets: &signvideo.Library{Table: table, Source: tt.source},
				Concat: tt.concat,
				Sink:   tt.sink,
			})
			_, err := d.Convert(context.Background(), "tab", hearing(tt.text))
			if !errors.Is(err, model.ErrExternalFailure) {
				t.Errorf("got %v, want ExternalFailure", err)
			}
		})
	}
}

func TestJournalAndObserver(t *testing.T) {
	rec := &recorder{}
	d := convert.New(convert.Config{Braille: braille.Table{}, Observer: rec, Journal: rec})

	for i := range 3 {
		text := fmt.Sprintf("نص %d", i)
		if _, err := d.Convert(context.Background(), "tab", model.ConversionRequest{SourceText: text, Profile: model.ProfileBraille}); err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	if _, err := d.Convert(context.Background(), "tab", hearing("x")); err == nil {
		t.Fatal("expected CapabilityUnavailable without assets")
	}

	if len(rec.records) != 4 {
		t.Fatalf("journal has %d records, want 4", len(rec.records))
	}
	if r := rec.records[0]; r.Surface != "tab" || r.Profile != model.ProfileBraille || r.InputLen != 4 || r.Outcome != "ok" {
		t.Errorf("unexpected record %+v", r)
	}
	if r := rec.records[3]; r.Outcome != "capability_unavailable" {
		t.Errorf("failure outcome = %q", r.Outcome)
	}
	if rec.outcomes[3] != "hearing:capability_unavailable" {
		t.Errorf("observer outcome = %q", rec.outcomes[3])
	}
}

func TestCacheTTLFor(t *testing.T) {
	tests := []struct {
		expiry time.Duration
		want   time.Duration
	}{
		{time.Hour, 45 * time.Minute},
		{convert.DefaultURLExpiry, convert.DefaultCacheTTL},
		{0, convert.DefaultCacheTTL},
	}
	for _, tt := range tests {
		if got := convert.CacheTTLFor(tt.expiry); got != tt.want {
			t.Errorf("CacheTTLFor(%v) = %v, want %v", tt.expiry, got, tt.want)
		}
	}
	if convert.DefaultCacheTTL >= convert.DefaultURLExpiry {
		t.Errorf("default cache TTL %v must be shorter than URL expiry %v", convert.DefaultCacheTTL, convert.DefaultURLExpiry)
	}
}
