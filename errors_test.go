package cordon_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vireolabs/cordon"
)

// TestPublicErrorConstants verifies that every exported error constant
// implements the error interface, matches itself via errors.Is directly and
// when wrapped, and does not match unrelated errors.
func TestPublicErrorConstants(t *testing.T) {
	t.Parallel()

	allErrors := map[string]error{
		"ErrTokenHeld":      cordon.ErrTokenHeld,
		"ErrPoolClosed":     cordon.ErrPoolClosed,
		"ErrListenerClosed": cordon.ErrListenerClosed,
	}

	for name, sentinel := range allErrors {
		name, sentinel := name, sentinel
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if msg := sentinel.Error(); msg == "" {
				t.Errorf("%s.Error() returned empty string", name)
			}
			if !errors.Is(sentinel, sentinel) {
				t.Errorf("errors.Is(%s, %s) = false, want true (self-match)", name, name)
			}
			wrapped := fmt.Errorf("wrapping: %w", sentinel)
			if !errors.Is(wrapped, sentinel) {
				t.Errorf("errors.Is(wrapped %s) = false, want true", name)
			}
			if errors.Is(sentinel, errors.New("some other error")) {
				t.Errorf("errors.Is(%s, errors.New(...)) = true, want false", name)
			}
		})
	}
}

// TestPublicErrorConstantsAreDistinct verifies that no two exported error
// constants match each other (every sentinel has a unique identity).
func TestPublicErrorConstantsAreDistinct(t *testing.T) {
	t.Parallel()

	named := []struct {
		name string
		err  error
	}{
		{"ErrTokenHeld", cordon.ErrTokenHeld},
		{"ErrPoolClosed", cordon.ErrPoolClosed},
		{"ErrListenerClosed", cordon.ErrListenerClosed},
	}

	for i, a := range named {
		for _, b := range named[i+1:] {
			if errors.Is(a.err, b.err) || errors.Is(b.err, a.err) {
				t.Errorf("%s and %s match via errors.Is: constants must be distinct", a.name, b.name)
			}
		}
	}
}

// TestErrTokenHeldValue verifies the public-facing contract: Reacquire on a
// held token returns ErrTokenHeld.
func TestErrTokenHeldValue(t *testing.T) {
	t.Parallel()

	lim := cordon.New(cordon.WithMaxConnections(2))
	conn := acceptedConn(t, lim)

	err := conn.Token().Reacquire(context.Background(), cordon.DemotePriority)
	if !errors.Is(err, cordon.ErrTokenHeld) {
		t.Fatalf("Reacquire() on held token = %v, want ErrTokenHeld", err)
	}
}
