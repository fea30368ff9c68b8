package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tamkeen-edu/tamkeen/internal/extract"
	appI18n "github.com/tamkeen-edu/tamkeen/internal/i18n"
	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// Uploads beyond this stay on disk while the form is parsed.
const multipartMemory = 8 << 20

type extractResponse struct {
	extract.Document
	FileName string `json:"file_name"`
	Message  string `json:"message"`
}

// handleExtract reads the "file" field of a multipart upload and returns
// its plain text for use as a conversion or quiz source.
func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, errorBody{
				Kind:    kindBadRequest,
				Message: appI18n.Error(r.Context(), kindBadRequest),
				Fields:  map[string]string{"file": "max"},
			})
			return
		}
		writeBadRequest(w, r, map[string]string{"file": "required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, r, map[string]string{"file": "required"})
		return
	}
	defer file.Close()

	format, err := extract.FormatOf(hdr.Filename)
	if err != nil {
		h.metrics.ObserveExtraction("unknown", string(model.KindOf(err)))
		writeFailure(w, r, err)
		return
	}
	doc, err := extract.Extract(r.Context(), file, hdr.Size, format)
	if err != nil {
		h.metrics.ObserveExtraction(string(format), outcomeOf(err))
		slog.Info("document extraction failed", "file", hdr.Filename, "format", format, "error", err)
		writeFailure(w, r, err)
		return
	}
	h.metrics.ObserveExtraction(string(format), "ok")
	slog.Debug("document extracted", "file", hdr.Filename, "format", format, "pages", doc.Pages, "chars", len(doc.Text))

	writeJSON(w, http.StatusOK, extractResponse{
		Document: doc,
		FileName: hdr.Filename,
		Message:  extractedMessage(r, doc),
	})
}

func extractedMessage(r *http.Request, doc extract.Document) string {
	if doc.Format == extract.FormatPDF {
		return appI18n.Tp(r.Context(), "Extracted.pdf", doc.Pages)
	}
	return appI18n.T(r.Context(), "Extracted."+string(doc.Format))
}

func outcomeOf(err error) string {
	if k := model.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
