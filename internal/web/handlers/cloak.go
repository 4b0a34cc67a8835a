package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/kozaktomas/facecloak/internal/cloak"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
)

// CloakHandler serves rewritten pages.
type CloakHandler struct {
	service *cloak.Service
}

// NewCloakHandler creates a cloak handler.
func NewCloakHandler(service *cloak.Service) *CloakHandler {
	return &CloakHandler{service: service}
}

// Get fetches the page named by the url query parameter, obfuscates the
// matched images and returns the HTML.
func (h *CloakHandler) Get(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !fetchproxy.IsRemoteURL(pageURL) {
		respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	report, err := h.service.CloakPage(r.Context(), pageURL, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("url", sanitizeForLog(pageURL)).Msg("cloak failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Facecloak-Run-Id", report.RunID)
	w.Header().Set("X-Facecloak-Matched", strconv.FormatInt(report.Stats.Matched, 10))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report.HTML))
}
