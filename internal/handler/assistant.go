package handler

import (
	"net/http"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

type chatRequest struct {
	Messages []model.ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
	Subject  string              `json:"subject" validate:"max=200"`
}

type analyzeRequest struct {
	StudentAnswers string `json:"studentAnswers"`
	Subject        string `json:"subject" validate:"max=200"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		writeFailure(w, r, model.E(model.KindCapabilityUnavailable, "assistant.chat", nil))
		return
	}
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	reply, err := h.assistant.ChatAbout(r.Context(), req.Subject, req.Messages)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": reply})
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		writeFailure(w, r, model.E(model.KindCapabilityUnavailable, "assistant.analyze", nil))
		return
	}
	var req analyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.assistant.AnalyzePerformance(r.Context(), req.Subject, req.StudentAnswers)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}
