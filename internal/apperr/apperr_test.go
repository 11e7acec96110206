package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", New(NotFound, "voice %q not found", "x"), NotFound},
		{"wrapped cause", Wrap(Conflict, errors.New("boom"), "model not ready"), Conflict},
		{"fmt-wrapped", fmt.Errorf("outer: %w", New(BadRequest, "empty text")), BadRequest},
		{"plain error", errors.New("disk full"), Internal},
		{"unavailable", New(Unavailable, "runtime missing"), Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessageIncludesCause(t *testing.T) {
	err := Wrap(Internal, errors.New("permission denied"), "writing artifact")
	if got, want := Message(err), "writing artifact: permission denied"; got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}

	plain := errors.New("plain")
	if Message(plain) != "plain" {
		t.Errorf("Message(plain) = %q", Message(plain))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(NotFound, cause, "lookup failed")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}
