package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/kozaktomas/facecloak/internal/constants"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
)

// MessageDispatcher handles proxy messages.
type MessageDispatcher interface {
	Handle(ctx context.Context, msg fetchproxy.Message) (string, error)
}

// MessagesHandler exposes the fetch proxy over HTTP.
type MessagesHandler struct {
	proxy MessageDispatcher
}

// NewMessagesHandler creates a messages handler.
func NewMessagesHandler(proxy MessageDispatcher) *MessagesHandler {
	return &MessagesHandler{proxy: proxy}
}

// Post decodes a message and answers with the data URL as a JSON string.
func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxMessageSize)

	var msg fetchproxy.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if msg.Type == fetchproxy.TypeFetchImage && !fetchproxy.IsRemoteURL(msg.URL) {
		respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	dataURL, err := h.proxy.Handle(r.Context(), msg)
	if err != nil {
		if errors.Is(err, fetchproxy.ErrUnknownMessage) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Str("url", sanitizeForLog(msg.URL)).Msg("fetch failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, dataURL)
}
