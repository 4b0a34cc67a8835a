package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/kozaktomas/facecloak/internal/constants"
	"github.com/kozaktomas/facecloak/internal/imageutil"
	"github.com/kozaktomas/facecloak/internal/recognizer"
)

// RecognizerSource returns the shared orchestrator.
type RecognizerSource interface {
	Get(ctx context.Context) (*recognizer.Orchestrator, error)
}

// MatchHandler matches uploaded images against the reference faces.
type MatchHandler struct {
	recognizers RecognizerSource
}

// NewMatchHandler creates a match handler.
func NewMatchHandler(recognizers RecognizerSource) *MatchHandler {
	return &MatchHandler{recognizers: recognizers}
}

// Post handles a multipart upload with the image in the "file" field.
func (h *MatchHandler) Post(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	orch, err := h.recognizers.Get(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("recognizer unavailable")
		respondError(w, http.StatusServiceUnavailable, "recognizer unavailable")
		return
	}

	outcome, err := orch.MatchImage(r.Context(), data)
	if err != nil {
		if errors.Is(err, imageutil.ErrDecode) {
			respondError(w, http.StatusUnprocessableEntity, "unsupported image")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("matching failed")
		respondError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}
