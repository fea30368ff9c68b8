// Package signvideo resolves words to sign-language clips and renders them
// into a single video.
package signvideo

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// DefaultBaseURL hosts the clips referenced by DefaultWords.
const DefaultBaseURL = "https://raw.githubusercontent.com/example/arsl-dataset/main/"

// DefaultWords is the built-in word table. Refs are relative to DefaultBaseURL.
var DefaultWords = map[string]string{
	"مرحبا":  "videos/hello.mp4",
	"السلام": "videos/peace.mp4",
	"عليكم":  "videos/upon-you.mp4",
	"شكرا":   "videos/thanks.mp4",
	"من":     "videos/from.mp4",
	"فضلك":   "videos/please.mp4",
	"نعم":    "videos/yes.mp4",
	"لا":     "videos/no.mp4",
	"كيف":    "videos/how.mp4",
	"حالك":   "videos/you.mp4",
}

// Table is a word to clip lookup that can be swapped at runtime.
type Table struct {
	mu    sync.RWMutex
	words map[string]convert.AssetRef
}

// NewTable copies words into a Table.
func NewTable(words map[string]string) *Table {
	t := &Table{}
	t.Replace(words)
	return t
}

// DefaultTable returns a Table holding DefaultWords.
func DefaultTable() *Table {
	return NewTable(DefaultWords)
}

// Lookup is an exact, case-sensitive match.
func (t *Table) Lookup(word string) (convert.AssetRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.words[word]
	return ref, ok
}

// Replace swaps the whole table. Blank words or refs are skipped.
func (t *Table) Replace(words map[string]string) {
	next := make(map[string]convert.AssetRef, len(words))
	for w, ref := range words {
		w, ref = strings.TrimSpace(w), strings.TrimSpace(ref)
		if w == "" || ref == "" {
			continue
		}
		next[w] = convert.AssetRef(ref)
	}
	t.mu.Lock()
	t.words = next
	t.mu.Unlock()
}

// Len returns the number of words.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.words)
}

// Entries lists the table sorted by word.
func (t *Table) Entries() []model.SignAsset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.SignAsset, 0, len(t.words))
	for _, w := range slices.Sorted(maps.Keys(t.words)) {
		out = append(out, model.SignAsset{Word: w, Ref: string(t.words[w])})
	}
	return out
}

// Source retrieves clip bytes.
type Source interface {
	Fetch(ctx context.Context, ref convert.AssetRef) ([]byte, error)
}

// ErrNoSource is returned by Library.Fetch when no Source is configured.
var ErrNoSource = errors.New("no sign clip source configured")

// Library pairs a Table with the Source its refs point into.
type Library struct {
	*Table
	Source Source
}

// Fetch reads the clip for ref from the Source.
func (l *Library) Fetch(ctx context.Context, ref convert.AssetRef) ([]byte, error) {
	if l.Source == nil {
		return nil, ErrNoSource
	}
	return l.Source.Fetch(ctx, ref)
}
