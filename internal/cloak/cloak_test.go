package cloak_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/facecloak/internal/cloak"
	"github.com/kozaktomas/facecloak/internal/fetchproxy"
	"github.com/kozaktomas/facecloak/internal/observer"
	"github.com/kozaktomas/facecloak/internal/recognizer"
	"github.com/kozaktomas/facecloak/internal/recognizer/recognizertest"
)

const page = `<!doctype html><html><body>
<h1>News</h1>
<img src="/img/musk.jpg">
<div><img src="/img/crowd.png"></div>
<img src="/img/missing.jpg">
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	musk := recognizertest.JPEG(80, 80)
	crowd := recognizertest.PNG(90, 60)
	mux := http.NewServeMux()
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/img/musk.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(musk)
	})
	mux.HandleFunc("/img/crowd.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(crowd)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, svcOpts ...cloak.ServiceOption) *cloak.Service {
	t.Helper()
	lib := recognizertest.New()
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.10))
	lib.SetFaces(80, 80, recognizertest.Descriptor(0.12))
	lib.SetFaces(90, 60, recognizertest.Descriptor(0.70))

	ref := "file:///assets/reference_images/musk1.jpg"
	o, err := recognizer.Create(context.Background(), lib,
		recognizertest.Loader{ref: recognizertest.PNG(60, 60)},
		recognizer.Options{}, []recognizer.Exemplar{{URL: ref, Label: "musk"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return cloak.NewService(fetchproxy.New(), observer.Static(o), observer.Options{}, svcOpts...)
}

type countingProgress struct {
	mu    sync.Mutex
	total int
	done  int
}

func (p *countingProgress) Started(total int) {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()
}

func (p *countingProgress) Done(observer.Result) {
	p.mu.Lock()
	p.done++
	p.mu.Unlock()
}

func TestCloakPage(t *testing.T) {
	srv := newServer(t)
	svc := newService(t)
	progress := &countingProgress{}

	report, err := svc.CloakPage(context.Background(), srv.URL+"/page.html", progress)
	if err != nil {
		t.Fatalf("CloakPage() error = %v", err)
	}

	if report.RunID == "" {
		t.Error("missing run id")
	}
	want := observer.Stats{Accepted: 3, Matched: 1, Clean: 1, Failed: 1}
	if report.Stats != want {
		t.Errorf("Stats = %+v, want %+v", report.Stats, want)
	}
	if len(report.Matched) != 1 || report.Matched[0] != srv.URL+"/img/musk.jpg" {
		t.Errorf("Matched = %v", report.Matched)
	}
	if progress.total != 3 || progress.done != 3 {
		t.Errorf("progress = %d/%d, want 3/3", progress.done, progress.total)
	}

	if !strings.Contains(report.HTML, `data-face-match="true"`) {
		t.Error("rendered page lacks match marker")
	}
	if strings.Count(report.HTML, `data-face-processed="true"`) != 3 {
		t.Error("expected three processed markers")
	}
	if !strings.Contains(report.HTML, "blur(5px) sepia(50%) hue-rotate(320deg)") {
		t.Error("rendered page lacks obfuscation filter")
	}
}

func TestCloakPage_NotHTML(t *testing.T) {
	srv := newServer(t)
	svc := newService(t)

	if _, err := svc.CloakPage(context.Background(), srv.URL+"/img/musk.jpg", nil); err == nil {
		t.Fatal("expected error for non-html page")
	}
}

func TestCloakHTML_NoImages(t *testing.T) {
	svc := newService(t)

	report, err := svc.CloakHTML(context.Background(), strings.NewReader("<p>text only</p>"), "", nil)
	if err != nil {
		t.Fatalf("CloakHTML() error = %v", err)
	}
	if report.Stats != (observer.Stats{}) {
		t.Errorf("Stats = %+v, want zero", report.Stats)
	}
	if !strings.Contains(report.HTML, "<p>text only</p>") {
		t.Errorf("unexpected HTML %s", report.HTML)
	}
}

func writeLocalImage(t *testing.T) (dir, fileURL string) {
	t.Helper()
	dir = t.TempDir()
	path := filepath.Join(dir, "private.jpg")
	if err := os.WriteFile(path, recognizertest.JPEG(80, 80), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir, "file://" + filepath.ToSlash(path)
}

func TestCloakPage_LocalImagesNotRead(t *testing.T) {
	_, fileURL := writeLocalImage(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><img src="` + fileURL + `"></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	progress := &recordingProgress{}
	report, err := newService(t).CloakPage(context.Background(), srv.URL+"/page.html", progress)
	if err != nil {
		t.Fatalf("CloakPage() error = %v", err)
	}

	want := observer.Stats{Accepted: 1, Failed: 1}
	if report.Stats != want {
		t.Errorf("Stats = %+v, want %+v", report.Stats, want)
	}
	if len(report.Matched) != 0 {
		t.Errorf("Matched = %v, want none", report.Matched)
	}
	if strings.Contains(report.HTML, "data-face-match") {
		t.Error("local image must not be matched")
	}
	if len(progress.results) != 1 || !errors.Is(progress.results[0].Err, fetchproxy.ErrSchemeNotAllowed) {
		t.Errorf("results = %+v, want ErrSchemeNotAllowed", progress.results)
	}
}

func TestCloakHTML_WithLocalImages(t *testing.T) {
	dir, _ := writeLocalImage(t)
	baseURL := "file://" + filepath.ToSlash(dir) + "/"

	report, err := newService(t, cloak.WithLocalImages()).CloakHTML(context.Background(),
		strings.NewReader(`<img src="private.jpg">`), baseURL, nil)
	if err != nil {
		t.Fatalf("CloakHTML() error = %v", err)
	}
	if report.Stats.Matched != 1 {
		t.Errorf("Stats = %+v, want one match", report.Stats)
	}
}

type recordingProgress struct {
	mu      sync.Mutex
	results []observer.Result
}

func (p *recordingProgress) Started(int) {}

func (p *recordingProgress) Done(res observer.Result) {
	p.mu.Lock()
	p.results = append(p.results, res)
	p.mu.Unlock()
}
