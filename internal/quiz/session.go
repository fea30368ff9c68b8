package quiz

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// Session is one quiz lifecycle: synthesis, answering, and a single scoring.
// It is safe for concurrent use.
type Session struct {
	synth *Synthesizer

	mu         sync.Mutex
	generating bool
	epoch      uint64 // bumped by Reset and Synthesize to orphan in-flight synthesis
	questions  []model.Question
	answers    map[int]int
	scored     bool
	correct    int
}

// NewSession returns an empty session backed by synth.
func NewSession(synth *Synthesizer) *Session {
	return &Session{synth: synth, answers: make(map[int]int)}
}

// State derives the lifecycle state from the session's contents.
func (s *Session) State() model.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() model.QuizState {
	switch {
	case s.generating:
		return model.QuizGenerating
	case len(s.questions) == 0:
		return model.QuizEmpty
	case s.scored:
		return model.QuizScored
	case len(s.answers) == 0:
		return model.QuizReady
	case len(s.answers) < len(s.questions):
		return model.QuizAnswering
	default:
		return model.QuizSubmittable
	}
}

// Synthesize generates a fresh question set. It is only allowed from the
// Empty or Scored states; a scored session is discarded first.
func (s *Session) Synthesize(ctx context.Context, text string) ([]model.Question, error) {
	s.mu.Lock()
	if st := s.stateLocked(); st != model.QuizEmpty && st != model.QuizScored {
		s.mu.Unlock()
		return nil, model.E(model.KindSessionBusy, "quiz.synthesize", nil)
	}
	s.clearLocked()
	s.generating = true
	epoch := s.epoch
	s.mu.Unlock()

	questions, err := s.synth.Synthesize(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, model.E(model.KindStaleResult, "quiz.synthesize", nil)
	}
	s.generating = false
	if err != nil {
		return nil, err
	}
	s.questions = questions
	return slices.Clone(questions), nil
}

// RecordAnswer stores the chosen option for a question, replacing any
// earlier choice. Answers are rejected once the session is scored.
func (s *Session) RecordAnswer(questionID, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scored {
		return model.E(model.KindSessionClosed, "quiz.answer", nil)
	}
	idx := slices.IndexFunc(s.questions, func(q model.Question) bool { return q.ID == questionID })
	if idx < 0 {
		return model.E(model.KindInvalidAnswer, "quiz.answer", nil)
	}
	if option < 0 || option >= len(s.questions[idx].Options) {
		return model.E(model.KindInvalidAnswer, "quiz.answer", nil)
	}
	s.answers[questionID] = option
	return nil
}

// Submit scores the session once every question has an answer. Calling it
// again on a scored session returns the frozen outcome.
func (s *Session) Submit() (model.QuizOutcome, error) {
	out, _, err := s.Finalize(nil)
	return out.QuizOutcome, err
}

// Finalized is a scored session's outcome together with what was graded.
type Finalized struct {
	model.QuizOutcome
	Questions []model.Question
	Answers   map[int]int
}

// Finalize is Submit that also reports whether this call did the scoring.
// On the scoring call, persist (if non-nil) runs under the session lock
// before the session is frozen; if it fails the session stays Submittable
// and a later Finalize scores again.
func (s *Session) Finalize(persist func(Finalized) error) (Finalized, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scored {
		return s.finalizedLocked(), false, nil
	}
	if len(s.questions) == 0 || s.generating || len(s.answers) < len(s.questions) {
		return Finalized{}, false, model.E(model.KindMissingSelection, "quiz.submit", nil)
	}
	s.correct = Grade(s.questions, s.answers)
	fin := s.finalizedLocked()
	if persist != nil {
		if err := persist(fin); err != nil {
			s.correct = 0
			return Finalized{}, false, err
		}
	}
	s.scored = true
	return fin, true, nil
}

func (s *Session) finalizedLocked() Finalized {
	return Finalized{
		QuizOutcome: s.outcomeLocked(),
		Questions:   slices.Clone(s.questions),
		Answers:     maps.Clone(s.answers),
	}
}

func (s *Session) outcomeLocked() model.QuizOutcome {
	total := len(s.questions)
	pct := 0
	if total > 0 {
		// round half up, matching Math.round on a non-negative ratio
		pct = (s.correct*200 + total) / (2 * total)
	}
	return model.QuizOutcome{CorrectCount: s.correct, Total: total, Percent: pct}
}

// Score counts correct answers against the current answer map without
// changing the session.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Grade(s.questions, s.answers)
}

// Reset returns the session to Empty. Any synthesis in flight is orphaned.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.epoch++
	s.generating = false
	s.questions = nil
	s.answers = make(map[int]int)
	s.scored = false
	s.correct = 0
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() model.QuizSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := make([]model.Question, len(s.questions))
	for i, q := range s.questions {
		q.Options = slices.Clone(q.Options)
		qs[i] = q
	}
	return model.QuizSnapshot{
		State:        s.stateLocked(),
		Questions:    qs,
		Answers:      maps.Clone(s.answers),
		Scored:       s.scored,
		CorrectCount: s.correct,
	}
}
