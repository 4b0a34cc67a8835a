package recognizer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/facecloak/internal/recognizer"
	"github.com/kozaktomas/facecloak/internal/recognizer/recognizertest"
)

func providerFor(lib *recognizertest.Library) *recognizer.Provider {
	loader := recognizertest.Loader{muskURL: recognizertest.PNG(60, 60)}
	return recognizer.NewProvider(func(ctx context.Context) (*recognizer.Orchestrator, error) {
		return recognizer.Create(ctx, lib, loader, recognizer.Options{},
			[]recognizer.Exemplar{{URL: muskURL, Label: "musk"}})
	})
}

func TestProvider_ConcurrentGetLoadsOnce(t *testing.T) {
	lib := recognizertest.New()
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.1))
	lib.LoadGate = make(chan struct{})
	p := providerFor(lib)

	const callers = 16
	results := make([]*recognizer.Orchestrator, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.Get(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(lib.LoadGate)
	wg.Wait()

	if lib.LoadCalls() != 1 {
		t.Errorf("expected exactly 1 model load, got %d", lib.LoadCalls())
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different orchestrator", i)
		}
	}
	if results[0].State() != recognizer.StateReady {
		t.Errorf("expected ready orchestrator, got %s", results[0].State())
	}

	again, err := p.Get(context.Background())
	if err != nil || again != results[0] {
		t.Errorf("later Get returned %p, %v", again, err)
	}
	if lib.LoadCalls() != 1 {
		t.Errorf("expected model load to stay at 1, got %d", lib.LoadCalls())
	}
}

func TestProvider_FailureIsMemoized(t *testing.T) {
	lib := recognizertest.New()
	lib.LoadErr = errors.New("weights missing")
	p := providerFor(lib)

	_, err1 := p.Get(context.Background())
	_, err2 := p.Get(context.Background())

	if err1 == nil || err2 == nil {
		t.Fatalf("expected errors, got %v and %v", err1, err2)
	}
	if lib.LoadCalls() != 1 {
		t.Errorf("expected no retry, got %d loads", lib.LoadCalls())
	}
}

func TestProvider_CancelledCallerDoesNotAbortInit(t *testing.T) {
	lib := recognizertest.New()
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.1))
	lib.LoadGate = make(chan struct{})
	p := providerFor(lib)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(lib.LoadGate)
	o, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get after cancellation failed: %v", err)
	}
	if o.State() != recognizer.StateReady {
		t.Errorf("expected ready, got %s", o.State())
	}
	if lib.LoadCalls() != 1 {
		t.Errorf("expected 1 load, got %d", lib.LoadCalls())
	}
}

func TestProvider_RecoversPanic(t *testing.T) {
	p := recognizer.NewProvider(func(ctx context.Context) (*recognizer.Orchestrator, error) {
		panic("boom")
	})

	if _, err := p.Get(context.Background()); err == nil {
		t.Error("expected error from panicking init")
	}
}

func TestProvider_Close(t *testing.T) {
	lib := recognizertest.New()
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.1))
	p := providerFor(lib)

	if err := p.Close(); err != nil {
		t.Fatalf("Close before Get failed: %v", err)
	}
	if _, err := p.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !lib.Closed() {
		t.Error("expected library closed")
	}
}

func TestProvider_Status(t *testing.T) {
	lib := recognizertest.New()
	lib.SetFaces(60, 60, recognizertest.Descriptor(0.1))
	lib.LoadGate = make(chan struct{})
	p := providerFor(lib)

	if got := p.Status(); got != "idle" {
		t.Errorf("Status() before Get = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Get(ctx)
	if got := p.Status(); got != "initialising" {
		t.Errorf("Status() while loading = %q", got)
	}

	close(lib.LoadGate)
	if _, err := p.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.Status(); got != "ready" {
		t.Errorf("Status() after load = %q", got)
	}

	failing := recognizertest.New()
	failing.LoadErr = errors.New("weights missing")
	fp := providerFor(failing)
	fp.Get(context.Background())
	if got := fp.Status(); got != "failed" {
		t.Errorf("Status() after failure = %q", got)
	}
}
