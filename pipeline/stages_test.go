package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/dcshock/respipe/response"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	in := Bag{"a": 1, "b": []int{1, 2}}
	out, err := Noop().Process(ctx, in, nil, nil)
	if err != nil {
		t.Fatalf("Noop: err = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Noop: got %v", out)
	}
}

func TestTap(t *testing.T) {
	ctx := context.Background()
	var seenCtx context.Context
	var seenBag Bag
	h := Tap(func(c context.Context, b Bag) {
		seenCtx = c
		seenBag = b
	})

	in := Bag{"k": "tapped"}
	out, err := h.Process(ctx, in, nil, nil)
	if err != nil {
		t.Fatalf("Tap: err = %v", err)
	}
	if seenCtx != ctx || seenBag["k"] != "tapped" {
		t.Errorf("Tap: fn called with ctx=%v bag=%v", seenCtx, seenBag)
	}
	if out["k"] != "tapped" {
		t.Errorf("Tap: want bag passed through, got %v", out)
	}
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	out, err := Set("source", "cache").Process(ctx, Bag{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["source"] != "cache" {
		t.Errorf("Set: got %v", out)
	}
}

func TestTransform(t *testing.T) {
	ctx := context.Background()
	h := Transform("status", "status_text", func(_ context.Context, code int) (string, error) {
		return strconv.Itoa(code), nil
	})
	out, err := h.Process(ctx, Bag{"status": 201}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["status_text"] != "201" {
		t.Errorf("Transform: got %v", out)
	}
}

func TestTransform_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	h := Transform("status", "x", func(_ context.Context, code int) (int, error) { return code, nil })
	_, err := h.Process(ctx, Bag{"status": "200"}, nil, nil)
	if err == nil {
		t.Fatal("expected type error")
	}
	_, err = h.Process(ctx, Bag{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestTransform_ConvertError(t *testing.T) {
	ctx := context.Background()
	errConv := errors.New("bad value")
	h := Transform("n", "m", func(_ context.Context, n int) (int, error) { return 0, errConv })
	_, err := h.Process(ctx, Bag{"n": 1}, nil, nil)
	if !errors.Is(err, errConv) {
		t.Errorf("expected wrapped convert error, got %v", err)
	}
}

func TestValidate_Pass(t *testing.T) {
	ctx := context.Background()
	h := Validate("max_num", func(n float64) bool { return n <= 800 }, "too large")
	out, err := h.Process(ctx, Bag{"max_num": 10.0}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["max_num"] != 10.0 {
		t.Errorf("Validate: got %v", out)
	}
}

func TestValidate_Reject(t *testing.T) {
	ctx := context.Background()
	h := Validate("max_num", func(n float64) bool { return n <= 800 }, "too large")
	bag, err := h.Process(ctx, Bag{"max_num": 900.0}, nil, nil)
	if !errors.Is(err, ErrRejected) || !IsRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectedError, got %T", err)
	}
	if rej.Key != "max_num" || rej.Value != 900.0 || rej.Reason != "too large" {
		t.Errorf("RejectedError: %+v", rej)
	}
	if bag["max_num"] != 900.0 {
		t.Errorf("rejection should keep the bag, got %v", bag)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	h := Validate("n", func(n int) bool { return true }, "")
	_, err := h.Process(ctx, Bag{"n": "x"}, nil, nil)
	if err == nil || IsRejected(err) {
		t.Errorf("expected plain type error, got %v", err)
	}
}

func TestValidate_NilPredicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Validate[int]("n", nil, "")
}

func TestRejectedError_Message(t *testing.T) {
	if got := (&RejectedError{Reason: "nope"}).Error(); got != "rejected: nope" {
		t.Errorf("got %q", got)
	}
	if got := (&RejectedError{Key: "status", Value: 500}).Error(); got != "rejected status=500: validation failed" {
		t.Errorf("got %q", got)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	slow := HandlerFunc(func(ctx context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		select {
		case <-ctx.Done():
			return bag, ctx.Err()
		case <-time.After(time.Second):
			return bag, nil
		}
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Process(ctx, Bag{}, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestValue(t *testing.T) {
	b := Bag{"status": 200, "ok": true}
	if v, ok := Value[int](b, "status"); !ok || v != 200 {
		t.Errorf("Value[int]: %v %v", v, ok)
	}
	if _, ok := Value[string](b, "status"); ok {
		t.Error("Value with wrong type should be !ok")
	}
	if _, ok := Value[bool](b, "missing"); ok {
		t.Error("Value of missing key should be !ok")
	}
	var nilBag Bag
	if c := nilBag.Clone(); c == nil {
		t.Error("Clone of nil bag should be non-nil")
	}
}
