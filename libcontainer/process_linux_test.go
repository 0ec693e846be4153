package libcontainer

import (
	"io"
	"strings"
	"testing"
)

func TestInitWaiter(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		if err := <-initWaiter(strings.NewReader("\x00")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	t.Run("bad byte", func(t *testing.T) {
		if err := <-initWaiter(strings.NewReader("\x01")); err == nil {
			t.Error("expected error for a non-zero readiness byte")
		}
	})
	t.Run("closed pipe", func(t *testing.T) {
		r, w := io.Pipe()
		_ = w.CloseWithError(io.ErrClosedPipe)
		if err := <-initWaiter(r); err == nil {
			t.Error("expected error for a closed pipe")
		}
	})
}
