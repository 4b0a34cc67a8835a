package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]string{"status": "ok"}, "{\"status\":\"ok\"}\n"},
		{"string", http.StatusOK, "data:image/png;base64,AA==", "\"data:image/png;base64,AA==\"\n"},
		{"created", http.StatusCreated, []int{1, 2}, "[1,2]\n"},
		{"nil", http.StatusNoContent, nil, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.status, tc.data)

			if recorder.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, recorder.Code)
			}
			if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
			}
			if recorder.Body.String() != tc.wantBody {
				t.Errorf("expected body %q, got %q", tc.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadGateway, "upstream returned 404")

	if recorder.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", recorder.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["error"] != "upstream returned 404" {
		t.Errorf("unexpected error %q", result["error"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("https://a\r\n.example.com/x\n"); got != "https://a.example.com/x" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

type fixedStatus string

func (s fixedStatus) Status() string { return string(s) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name        string
		reporter    StatusReporter
		wantRecStat string
	}{
		{"proxy only", nil, "disabled"},
		{"loading", fixedStatus("initialising"), "initialising"},
		{"ready", fixedStatus("ready"), "ready"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			NewHealthHandler(tc.reporter).Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			var body map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if body["status"] != "ok" || body["recognizer"] != tc.wantRecStat {
				t.Errorf("unexpected body %v", body)
			}
		})
	}
}
