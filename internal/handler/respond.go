package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

const maxBodyBytes = 1 << 20

// Error kinds that only exist at the HTTP layer.
const (
	kindBadRequest   = "bad_request"
	kindRateLimited  = "rate_limited"
	kindUnauthorized = "unauthorized"
	kindInternal     = "internal"
)

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// writeFailure maps an operation error to a status code and a localized
// message.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeErrorBody(w, status, errorBody{Kind: kindInternal, Message: appI18n.Error(r.Context(), kindInternal)})
		return
	}
	msgKind := string(kind)
	if kind == model.KindMissingSelection && strings.HasPrefix(opOf(err), "quiz.") {
		msgKind = "unanswered"
	}
	writeErrorBody(w, status, errorBody{Kind: string(kind), Message: appI18n.Error(r.Context(), msgKind)})
}

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindEmptyInput, model.KindMissingSelection:
		return http.StatusBadRequest
	case model.KindInsufficientContent, model.KindInvalidAnswer, model.KindUnreadableDocument:
		return http.StatusUnprocessableEntity
	case model.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case model.KindSessionBusy, model.KindSessionClosed, model.KindStaleResult:
		return http.StatusConflict
	case model.KindCapabilityUnavailable:
		return http.StatusServiceUnavailable
	case model.KindExternalFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func opOf(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	writeErrorBody(w, http.StatusBadRequest, errorBody{
		Kind:    kindBadRequest,
		Message: appI18n.Error(r.Context(), kindBadRequest),
		Fields:  fields,
	})
}

func writeInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	writeErrorBody(w, http.StatusInternalServerError, errorBody{
		Kind:    kindInternal,
		Message: appI18n.Error(r.Context(), kindInternal),
	})
}

// decode reads a JSON body into dst and validates it. On failure it writes
// a 400 response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeBadRequest(w, r, map[string]string{"body": err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeBadRequest(w, r, nil)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fe.Tag()
		}
		writeBadRequest(w, r, fields)
		return false
	}
	return true
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}
