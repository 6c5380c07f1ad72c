package stage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryEngineSucceedsWithoutRetry(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(3).WithRetryWait(time.Millisecond)
	engine := newRetryEngine("validate", cfg, nil, nil)

	calls := 0
	out, err := engine.runWith(context.Background(), NewElement(1), func(_ context.Context, in StreamElement) (StreamElement, error) {
		calls++
		return NewElement(in.Payload.(int) * 2), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if out.Payload != 2 {
		t.Errorf("expected payload 2, got %v", out.Payload)
	}
}

func TestRetryEngineRetriesThenSucceeds(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(3).WithRetryWait(time.Millisecond).WithMaxBackoff(5 * time.Millisecond)
	engine := newRetryEngine("flaky", cfg, nil, nil)

	attempts := 0
	out, err := engine.runWith(context.Background(), NewElement("x"), func(_ context.Context, in StreamElement) (StreamElement, error) {
		attempts++
		if attempts < 3 {
			return StreamElement{}, errors.New("transient")
		}
		return in, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if out.Payload != "x" {
		t.Errorf("expected original payload on eventual success, got %v", out.Payload)
	}
}

func TestRetryEngineExhaustsToFailureByDefault(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(2).WithRetryWait(time.Millisecond).WithMaxBackoff(2 * time.Millisecond)
	engine := newRetryEngine("always-fails", cfg, nil, nil)

	cause := errors.New("permanent")
	_, err := engine.runWith(context.Background(), NewElement(1), func(_ context.Context, _ StreamElement) (StreamElement, error) {
		return StreamElement{}, cause
	})

	var pipelineFailure *PipelineFailure
	if !errors.As(err, &pipelineFailure) {
		t.Fatalf("expected a *PipelineFailure, got %T: %v", err, err)
	}
	var transient *TransientItemFailure
	if !errors.As(err, &transient) {
		t.Fatalf("expected the cause chain to include *TransientItemFailure, got %v", err)
	}
	if transient.Attempt != cfg.RetryLimit+1 {
		t.Errorf("expected final attempt number %d, got %d", cfg.RetryLimit+1, transient.Attempt)
	}
}

func TestRetryEngineRecoverOnFailurePassesThroughOriginal(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(1).WithRetryWait(time.Millisecond).WithRecoverOnFailure(true)
	engine := newRetryEngine("salvage", cfg, nil, nil)

	original := NewElement("original")
	out, err := engine.runWith(context.Background(), original, func(_ context.Context, _ StreamElement) (StreamElement, error) {
		return StreamElement{}, errors.New("nope")
	})
	if err != nil {
		t.Fatalf("expected pass-through salvage to suppress the error, got %v", err)
	}
	if out.Payload != "original" {
		t.Errorf("expected original payload passed through, got %v", out.Payload)
	}
}

func TestRetryEngineDeadLetterHandlerTakesPriorityOverRecovery(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(1).WithRetryWait(time.Millisecond).WithRecoverOnFailure(true)
	base := NewBaseStep(Declaration{Name: "dead-letter"})
	base.SetDeadLetter(func(_ context.Context, failed StreamElement, cause error) (StreamElement, error) {
		return NewElement("handled:" + failed.Payload.(string) + ":" + cause.Error()), nil
	})
	engine := newRetryEngine("dead-letter", cfg, &base, nil)

	out, err := engine.runWith(context.Background(), NewElement("item"), func(_ context.Context, _ StreamElement) (StreamElement, error) {
		return StreamElement{}, errors.New("cause")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Payload != "handled:item:cause" {
		t.Errorf("expected dead-letter handler output, got %v", out.Payload)
	}
}

func TestRetryEngineBackoffRespectsCeiling(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryWait(time.Second).WithMaxBackoff(2 * time.Second)
	engine := newRetryEngine("backoff", cfg, nil, nil)

	for attempt := 0; attempt < 6; attempt++ {
		if d := engine.backoff(attempt); d > cfg.MaxBackoff {
			t.Errorf("attempt %d: backoff %v exceeds ceiling %v", attempt, d, cfg.MaxBackoff)
		}
	}
}

func TestRetryEngineContextCancellationDuringBackoff(t *testing.T) {
	cfg := DefaultStepConfig().WithRetryLimit(5).WithRetryWait(50 * time.Millisecond)
	engine := newRetryEngine("cancelled", cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := engine.runWith(ctx, NewElement(1), func(_ context.Context, _ StreamElement) (StreamElement, error) {
		return StreamElement{}, errors.New("still failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
