package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// DownloadFile serves a finalized WAV artifact by storage key.
func (a *App) DownloadFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || !strings.HasSuffix(filename, ".wav") {
		a.error(w, http.StatusBadRequest, "bad_request", "a .wav filename is required")
		return
	}

	data, err := a.Files.Read(r.Context(), filename)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
