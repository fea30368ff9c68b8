// Package quiz derives short quizzes from free-form study text and grades them.
//
// Questions come from a keyword heuristic: tokens longer than four characters
// are substituted into fixed Arabic templates, alternating multiple choice and
// true/false. No language model is involved, so the same text always yields
// the same quiz.
package quiz

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// Options tunes the keyword heuristic. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	MaxKeywords     int           // keyword pool cap
	MinKeywordRunes int           // tokens must be strictly longer than this
	MinQuestions    int           // lower clamp on question count
	MaxQuestions    int           // upper clamp on question count
	GenerateDelay   time.Duration // artificial "in progress" delay
	ShuffleOptions  bool          // permute options instead of keeping the answer first
}

// DefaultOptions returns the reference heuristic parameters.
func DefaultOptions() Options {
	return Options{
		MaxKeywords:     20,
		MinKeywordRunes: 4,
		MinQuestions:    5,
		MaxQuestions:    7,
	}
}

// Synthesizer generates questions from text.
type Synthesizer struct {
	opts Options
}

// NewSynthesizer creates a Synthesizer. Non-positive limits fall back to defaults.
func NewSynthesizer(opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = def.MaxKeywords
	}
	if opts.MinKeywordRunes <= 0 {
		opts.MinKeywordRunes = def.MinKeywordRunes
	}
	if opts.MinQuestions <= 0 {
		opts.MinQuestions = def.MinQuestions
	}
	if opts.MaxQuestions < opts.MinQuestions {
		opts.MaxQuestions = max(def.MaxQuestions, opts.MinQuestions)
	}
	return &Synthesizer{opts: opts}
}

// Options returns the effective options.
func (s *Synthesizer) Options() Options {
	return s.opts
}

// Keywords returns the keyword pool: whitespace-separated tokens with more
// than MinKeywordRunes characters, in input order, capped at MaxKeywords.
func (s *Synthesizer) Keywords(text string) []string {
	var pool []string
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) <= s.opts.MinKeywordRunes {
			continue
		}
		pool = append(pool, tok)
		if len(pool) == s.opts.MaxKeywords {
			break
		}
	}
	return pool
}

// QuestionCount is floor(poolSize/3) clamped to [MinQuestions, MaxQuestions].
func (s *Synthesizer) QuestionCount(poolSize int) int {
	return min(s.opts.MaxQuestions, max(s.opts.MinQuestions, poolSize/3))
}

// Synthesize builds the question list for text. It fails with
// InsufficientContent when no token qualifies as a keyword.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]model.Question, error) {
	pool := s.Keywords(text)
	if len(pool) == 0 {
		return nil, model.E(model.KindInsufficientContent, "quiz.synthesize", nil)
	}

	if s.opts.GenerateDelay > 0 {
		t := time.NewTimer(s.opts.GenerateDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	n := s.QuestionCount(len(pool))
	questions := make([]model.Question, 0, n)
	for i := range n {
		q := BuildQuestion(i+1, pool[i%len(pool)], KindFor(i))
		if s.opts.ShuffleOptions {
			q = shuffle(q)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// Grade counts answers that match each question's correct option.
func Grade(questions []model.Question, answers map[int]int) int {
	correct := 0
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a == q.CorrectOptionIndex {
			correct++
		}
	}
	return correct
}
