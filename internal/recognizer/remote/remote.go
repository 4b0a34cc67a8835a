// Package remote implements recognizer.Library against a face embedding
// server that exposes /health and /embed/face.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kozaktomas/facecloak/internal/recognizer"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Library is an HTTP client for the embedding server. Models live on the
// server, so LoadModels only confirms it is reachable and healthy.
type Library struct {
	baseURL string
	client  *http.Client
	ready   atomic.Bool
}

// New creates a remote library for the server at baseURL.
func New(baseURL string) *Library {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Library{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Metric reports that embeddings from the server are compared by cosine
// distance.
func (l *Library) Metric() recognizer.Metric {
	return recognizer.MetricCosine
}

func (l *Library) LoadModels(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server unhealthy (status %d)", resp.StatusCode)
	}
	l.ready.Store(true)
	return nil
}

// DetectSingle returns the face with the highest detection score.
func (l *Library) DetectSingle(ctx context.Context, img []byte) (*recognizer.Detection, error) {
	dets, err := l.DetectAll(ctx, img)
	if err != nil || len(dets) == 0 {
		return nil, err
	}
	return &dets[0], nil
}

// DetectAll returns faces ordered by detection score, best first.
func (l *Library) DetectAll(ctx context.Context, img []byte) ([]recognizer.Detection, error) {
	if !l.ready.Load() {
		return nil, recognizer.ErrModelsNotLoaded
	}

	body, err := l.postImage(ctx, "/embed/face", img)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sort.SliceStable(faceResp.Faces, func(i, j int) bool {
		return faceResp.Faces[i].DetScore > faceResp.Faces[j].DetScore
	})

	dets := make([]recognizer.Detection, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		dets = append(dets, recognizer.Detection{
			Box:        bboxRect(f.BBox),
			Descriptor: recognizer.Descriptor(f.Embedding),
			Score:      f.DetScore,
		})
	}
	return dets, nil
}

func (l *Library) Close() error {
	l.ready.Store(false)
	l.client.CloseIdleConnections()
	return nil
}

func bboxRect(b []float64) image.Rectangle {
	if len(b) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3]))
}

// postImage posts img as the multipart "file" field and returns the body.
func (l *Library) postImage(ctx context.Context, endpoint string, img []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
