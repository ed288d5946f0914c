package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{Invalid("date", "rest day"), KindValidation},
		{fmt.Errorf("submit: %w", ErrSlotConflict), KindSlotConflict},
		{ErrIllegalTransition, KindIllegalTransition},
		{ErrAuthRequired, KindAuthRequired},
		{ErrNotFound, KindNotFound},
		{Unavailable(errors.New("dial tcp: refused")), KindUnavailable},
		{errors.New("boom"), KindInternal},
	}

	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestValidationError_MessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"time": "required",
		"date": "outside booking window",
	}}

	want := "validation failed: date: outside booking window; time: required"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ValidationError to match ErrValidation")
	}
}

func TestUnavailable_Nil(t *testing.T) {
	if Unavailable(nil) != nil {
		t.Error("expected nil for nil input")
	}
}

func TestNoFurtherAction(t *testing.T) {
	if !NoFurtherAction(fmt.Errorf("cancel: %w", ErrIllegalTransition)) {
		t.Error("expected illegal transition to need no further action")
	}
	if NoFurtherAction(ErrUnavailable) {
		t.Error("unavailable must be surfaced")
	}
}
