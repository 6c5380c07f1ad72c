package stage

import (
	"context"
	"errors"
	"testing"
)

func TestShapeString(t *testing.T) {
	cases := map[Shape]string{
		ShapeUnaryUnary:         "unary_unary",
		ShapeUnaryStreaming:     "unary_streaming",
		ShapeStreamingUnary:     "streaming_unary",
		ShapeStreamingStreaming: "streaming_streaming",
		Shape(99):               "unknown",
	}
	for shape, want := range cases {
		if got := shape.String(); got != want {
			t.Errorf("Shape(%d).String() = %q, want %q", shape, got, want)
		}
	}
}

func TestShapeStreamPredicates(t *testing.T) {
	if ShapeUnaryUnary.InputIsStream() || ShapeUnaryUnary.OutputIsStream() {
		t.Error("unary_unary should not report either side as streaming")
	}
	if !ShapeStreamingUnary.InputIsStream() || ShapeStreamingUnary.OutputIsStream() {
		t.Error("streaming_unary should report streaming input only")
	}
	if ShapeUnaryStreaming.InputIsStream() || !ShapeUnaryStreaming.OutputIsStream() {
		t.Error("unary_streaming should report streaming output only")
	}
	if !ShapeStreamingStreaming.InputIsStream() || !ShapeStreamingStreaming.OutputIsStream() {
		t.Error("streaming_streaming should report both sides as streaming")
	}
}

func TestBaseStepConfigOverlayPrecedence(t *testing.T) {
	decl := Declaration{Name: "validate", Shape: ShapeUnaryUnary}
	base := NewBaseStep(decl)

	manual := DefaultStepConfig().WithRetryLimit(3)
	base.InitialiseWithConfig(manual)

	processWide := DefaultStepConfig().WithRetryLimit(20)
	base.InitialiseWithConfig(processWide)

	if got := base.Config().RetryLimit; got != 3 {
		t.Errorf("expected manual override to stick at 3, got %d", got)
	}
}

func TestBaseStepDeadLetterUnset(t *testing.T) {
	base := NewBaseStep(Declaration{Name: "x"})
	_, _, handled := base.DeadLetter(context.Background(), NewElement(1), errors.New("fail"))
	if handled {
		t.Error("expected handled=false when no dead-letter handler is registered")
	}
}

func TestBaseStepDeadLetterInvoked(t *testing.T) {
	base := NewBaseStep(Declaration{Name: "x"})
	base.SetDeadLetter(func(_ context.Context, failed StreamElement, _ error) (StreamElement, error) {
		return NewElement("recovered from " + failed.Payload.(string)), nil
	})

	out, err, handled := base.DeadLetter(context.Background(), NewElement("item"), errors.New("fail"))
	if !handled {
		t.Fatal("expected handled=true")
	}
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if out.Payload != "recovered from item" {
		t.Errorf("unexpected recovered payload: %v", out.Payload)
	}
}

func TestPassthroughStep(t *testing.T) {
	var observed []StreamElement
	step := NewPassthroughStep("observe", func(e StreamElement) {
		observed = append(observed, e)
	})

	in := make(chan StreamElement, 2)
	out := make(chan StreamElement, 2)
	in <- NewElement(1)
	in <- NewElement(2)
	close(in)

	if err := step.Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []int
	for e := range out {
		got = append(got, e.Payload.(int))
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected passthrough [1 2], got %v", got)
	}
	if len(observed) != 2 {
		t.Errorf("expected 2 observed elements, got %d", len(observed))
	}
}

func TestFilterStep(t *testing.T) {
	step := NewFilterStep("evens", func(e StreamElement) bool {
		return e.Payload.(int)%2 == 0
	})

	in := make(chan StreamElement, 4)
	out := make(chan StreamElement, 4)
	for i := 1; i <= 4; i++ {
		in <- NewElement(i)
	}
	close(in)

	if err := step.Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []int
	for e := range out {
		got = append(got, e.Payload.(int))
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("expected [2 4], got %v", got)
	}
}

func TestMapStep(t *testing.T) {
	step := NewMapStep("double", func(e StreamElement) (StreamElement, error) {
		return NewElement(e.Payload.(int) * 2), nil
	})

	in := make(chan StreamElement, 2)
	out := make(chan StreamElement, 2)
	in <- NewElement(3)
	in <- NewElement(4)
	close(in)

	if err := step.Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []int
	for e := range out {
		got = append(got, e.Payload.(int))
	}
	if len(got) != 2 || got[0] != 6 || got[1] != 8 {
		t.Errorf("expected [6 8], got %v", got)
	}
}

func TestMapStepPropagatesError(t *testing.T) {
	failure := errors.New("bad input")
	step := NewMapStep("fail", func(_ StreamElement) (StreamElement, error) {
		return StreamElement{}, failure
	})

	in := make(chan StreamElement, 1)
	out := make(chan StreamElement, 1)
	in <- NewElement(1)
	close(in)

	err := step.Process(context.Background(), in, out)
	if !errors.Is(err, failure) {
		t.Errorf("expected %v, got %v", failure, err)
	}

	errElem := <-out
	if !errors.Is(errElem.Error, failure) {
		t.Errorf("expected error element wrapping %v, got %v", failure, errElem.Error)
	}
}

func TestStepFunc(t *testing.T) {
	step := NewStepFunc(Declaration{Name: "custom"}, func(_ context.Context, in <-chan StreamElement, out chan<- StreamElement) error {
		defer close(out)
		for e := range in {
			out <- e
		}
		return nil
	})

	if step.Name() != "custom" {
		t.Errorf("expected name %q, got %q", "custom", step.Name())
	}

	in := make(chan StreamElement, 1)
	out := make(chan StreamElement, 1)
	in <- NewElement("x")
	close(in)

	if err := step.Process(context.Background(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if (<-out).Payload != "x" {
		t.Error("expected passthrough of the single element")
	}
}
