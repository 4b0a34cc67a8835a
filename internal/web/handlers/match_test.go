package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facecloak/internal/recognizer"
	"github.com/kozaktomas/facecloak/internal/recognizer/recognizertest"
)

func TestMatchHandler(t *testing.T) {
	handler := NewMatchHandler(testProvider(t, nil))

	tests := []struct {
		name        string
		field       string
		data        []byte
		wantStatus  int
		wantMatches bool
		wantDetails int
	}{
		{"known face", "file", recognizertest.JPEG(80, 80), http.StatusOK, true, 1},
		{"unknown face", "file", recognizertest.PNG(90, 60), http.StatusOK, false, 1},
		{"no face", "file", recognizertest.JPEG(40, 40), http.StatusOK, false, 0},
		{"not an image", "file", []byte("hello"), http.StatusUnprocessableEntity, false, 0},
		{"missing file", "", nil, http.StatusBadRequest, false, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Post(recorder, multipartRequest(t, "/api/v1/match", tc.field, tc.data))

			if recorder.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, recorder.Code, recorder.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var outcome recognizer.MatchOutcome
			if err := json.Unmarshal(recorder.Body.Bytes(), &outcome); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if outcome.Matches != tc.wantMatches || len(outcome.Details) != tc.wantDetails {
				t.Errorf("unexpected outcome %+v", outcome)
			}
			if tc.wantMatches && outcome.Details[0].Label != "musk" {
				t.Errorf("expected label musk, got %q", outcome.Details[0].Label)
			}
			if !tc.wantMatches && tc.wantDetails == 1 && outcome.Details[0].Label != recognizer.UnknownLabel {
				t.Errorf("expected unknown label, got %q", outcome.Details[0].Label)
			}
		})
	}
}

func TestMatchHandler_RecognizerUnavailable(t *testing.T) {
	handler := NewMatchHandler(testProvider(t, errors.New("models missing")))

	recorder := httptest.NewRecorder()
	handler.Post(recorder, multipartRequest(t, "/api/v1/match", "file", recognizertest.JPEG(80, 80)))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", recorder.Code)
	}
}
