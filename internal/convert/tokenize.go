package convert

import "strings"

var punctuation = strings.NewReplacer(
	".", " ",
	",", " ",
	"!", " ",
	"?", " ",
	";", " ",
	":", " ",
)

// Tokenize strips . , ! ? ; : and splits text on whitespace, keeping at
// most limit tokens. Extra tokens are dropped silently. A non-positive
// limit keeps everything.
func Tokenize(text string, limit int) []string {
	words := strings.Fields(punctuation.Replace(text))
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words
}

// Partition splits words into those the store can resolve and those it
// cannot. Both slices keep input order and duplicates; refs lines up with
// resolved.
func Partition(store AssetStore, words []string) (resolved, unresolved []string, refs []AssetRef) {
	resolved = []string{}
	unresolved = []string{}
	for _, w := range words {
		if ref, ok := store.Lookup(w); ok {
			resolved = append(resolved, w)
			refs = append(refs, ref)
			continue
		}
		unresolved = append(unresolved, w)
	}
	return resolved, unresolved, refs
}
