package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facecloak/internal/recognizer"
	"github.com/kozaktomas/facecloak/internal/recognizer/recognizertest"
)

const testRefURL = "file:///assets/reference_images/musk1.jpg"

// testProvider returns a provider whose library knows a "musk" reference
// face (60x60), a matching probe (80x80) and an unknown probe (90x60).
func testProvider(t *testing.T, loadErr error) *recognizer.Provider {
	t.Helper()
	lib := recognizertest.New()
	lib.LoadErr = loadErr
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.10))
	lib.SetFaces(80, 80, recognizertest.Descriptor(0.15))
	lib.SetFaces(90, 60, recognizertest.Descriptor(0.90))
	loader := recognizertest.Loader{testRefURL: recognizertest.PNG(60, 60)}

	p := recognizer.NewProvider(func(ctx context.Context) (*recognizer.Orchestrator, error) {
		return recognizer.Create(ctx, lib, loader, recognizer.Options{},
			[]recognizer.Exemplar{{URL: testRefURL, Label: "musk"}})
	})
	t.Cleanup(func() { p.Close() })
	return p
}

// multipartRequest builds a POST with data in the given form field.
func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "probe.jpg")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	} else {
		mw.WriteField("note", "no file")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
