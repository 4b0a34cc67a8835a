package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/facecloak/internal/cloak"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/observer"
	"github.com/kozaktomas/facecloak/internal/recognizer/recognizertest"
)

func TestCloakHandler(t *testing.T) {
	probe := recognizertest.JPEG(80, 80)
	private := filepath.Join(t.TempDir(), "private.jpg")
	if err := os.WriteFile(private, probe, 0o600); err != nil {
		t.Fatal(err)
	}
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><img src="/face.jpg"><p>story</p></body></html>`))
		case "/local":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body><img src="file://` + filepath.ToSlash(private) + `"></body></html>`))
		case "/face.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(probe)
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	svc := cloak.NewService(fetchproxy.New(), observer.FromProvider(testProvider(t, nil)), observer.Options{})
	handler := NewCloakHandler(svc)

	t.Run("cloaks page", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cloak?url="+url.QueryEscape(site.URL+"/"), nil))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("unexpected Content-Type %q", ct)
		}
		if recorder.Header().Get("X-Facecloak-Matched") != "1" {
			t.Errorf("expected one match, got %q", recorder.Header().Get("X-Facecloak-Matched"))
		}
		if recorder.Header().Get("X-Facecloak-Run-Id") == "" {
			t.Error("missing run id header")
		}
		if !strings.Contains(recorder.Body.String(), `data-face-match="true"`) {
			t.Errorf("page not cloaked: %s", recorder.Body.String())
		}
	})

	t.Run("does not read server files", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cloak?url="+url.QueryEscape(site.URL+"/local"), nil))

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if got := recorder.Header().Get("X-Facecloak-Matched"); got != "0" {
			t.Errorf("expected no match for a file image, got %q", got)
		}
		if strings.Contains(recorder.Body.String(), "data-face-match") {
			t.Errorf("file image was matched: %s", recorder.Body.String())
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cloak?url="+url.QueryEscape(site.URL+"/gone"), nil))
		if recorder.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", recorder.Code)
		}
	})

	for _, bad := range []string{"", "file:///etc/hosts", "/relative"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cloak?url="+url.QueryEscape(bad), nil))
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", recorder.Code)
			}
		})
	}
}
