package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/model"
	"github.com/tamkeen-edu/tamkeen/internal/quiz"
)

type synthesizeRequest struct {
	Text string `json:"text"`
}

type answerRequest struct {
	QuestionID  int  `json:"question_id" validate:"required,min=1"`
	OptionIndex *int `json:"option_index" validate:"required,min=0"`
}

type submitResponse struct {
	Outcome  model.QuizOutcome `json:"outcome"`
	ResultID string            `json:"result_id,omitempty"`
	Message  string            `json:"message"`
}

func (h *Handler) session(r *http.Request) *quiz.Session {
	return h.quizzes.Get(model.SurfaceFromContext(r.Context()))
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeFailure(w, r, model.E(model.KindEmptyInput, "quiz.synthesize", nil))
		return
	}
	questions, err := h.session(r).Synthesize(r.Context(), req.Text)
	if err != nil {
		if model.KindOf(err) == model.KindInsufficientContent {
			h.metrics.QuizRejected()
		}
		writeFailure(w, r, err)
		return
	}
	h.metrics.QuizGenerated()
	writeJSON(w, http.StatusCreated, map[string]any{
		"questions": questions,
		"message":   appI18n.Tp(r.Context(), "QuizGenerated", len(questions)),
	})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(r).Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess := h.session(r)
	if err := sess.RecordAnswer(req.QuestionID, *req.OptionIndex); err != nil {
		writeFailure(w, r, err)
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    snap.State,
		"answered": len(snap.Answers),
		"total":    len(snap.Questions),
	})
}

// handleSubmit scores the session. The first successful submit persists
// the result; repeats return the same outcome without a new record. A
// failed save leaves the session unscored so the client can retry.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	surface := model.SurfaceFromContext(r.Context())

	var resultID string
	fin, first, err := h.session(r).Finalize(func(f quiz.Finalized) error {
		if h.store == nil {
			return nil
		}
		id, err := h.store.SaveQuizResult(model.QuizResult{
			Surface:      surface,
			Questions:    f.Questions,
			Answers:      f.Answers,
			CorrectCount: f.CorrectCount,
			Total:        f.Total,
			Percent:      f.Percent,
			SubmittedAt:  time.Now(),
		})
		if err != nil {
			return fmt.Errorf("save quiz result: %w", err)
		}
		resultID = id
		return nil
	})
	if err != nil {
		if model.KindOf(err) == "" {
			writeInternal(w, r, "failed to save quiz result", err)
			return
		}
		writeFailure(w, r, err)
		return
	}
	if first {
		h.metrics.QuizScored(fin.Percent)
	}

	msg := appI18n.Td(r.Context(), "QuizSubmitted", map[string]any{
		"Correct": fin.CorrectCount,
		"Total":   fin.Total,
	})
	writeJSON(w, http.StatusOK, submitResponse{
		Outcome:  fin.QuizOutcome,
		ResultID: resultID,
		Message:  msg,
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"state": sess.State()})
}
