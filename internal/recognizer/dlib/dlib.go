// Package dlib implements recognizer.Library on top of dlib through go-face.
package dlib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/kozaktomas/facecloak/internal/recognizer"
)

// ModelFiles are the artifacts face.NewRecognizer expects in its model directory:
// face detector, 5-point landmark predictor and ResNet descriptor network.
var ModelFiles = []string{
	"mmod_human_face_detector.dat",
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
}

// Library wraps a go-face recognizer. dlib is not safe for concurrent use,
// so all calls are serialised.
type Library struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New returns a library with no models loaded.
func New() *Library {
	return &Library{}
}

// CheckModels verifies all model files exist under dir.
func CheckModels(dir string) error {
	var missing []error
	for _, name := range ModelFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, fmt.Errorf("model %s: %w", name, err))
		}
	}
	return errors.Join(missing...)
}

func (l *Library) LoadModels(ctx context.Context, path string) error {
	if err := CheckModels(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := face.NewRecognizer(path)
	if err != nil {
		return fmt.Errorf("initialising dlib recognizer: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec != nil {
		l.rec.Close()
	}
	l.rec = rec
	return nil
}

// DetectSingle returns the first face dlib reports. Additional faces are ignored.
func (l *Library) DetectSingle(ctx context.Context, img []byte) (*recognizer.Detection, error) {
	dets, err := l.DetectAll(ctx, img)
	if err != nil || len(dets) == 0 {
		return nil, err
	}
	return &dets[0], nil
}

func (l *Library) DetectAll(ctx context.Context, img []byte) ([]recognizer.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec == nil {
		return nil, recognizer.ErrModelsNotLoaded
	}

	faces, err := l.rec.Recognize(img)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	dets := make([]recognizer.Detection, len(faces))
	for i, f := range faces {
		desc := make(recognizer.Descriptor, len(f.Descriptor))
		copy(desc, f.Descriptor[:])
		dets[i] = recognizer.Detection{
			Box:        f.Rectangle,
			Landmarks:  f.Shapes,
			Descriptor: desc,
			Score:      1,
		}
	}
	return dets, nil
}

func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec != nil {
		l.rec.Close()
		l.rec = nil
	}
	return nil
}
