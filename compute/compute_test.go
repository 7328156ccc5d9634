package compute

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDeviceFaultUnwraps(t *testing.T) {
	cause := errors.New("queue submit refused")
	err := Fault("backward dispatch", cause)

	var fault *DeviceFault
	if !errors.As(err, &fault) {
		t.Fatalf("Fault did not produce a *DeviceFault: %T", err)
	}
	if fault.Op != "backward dispatch" {
		t.Errorf("Op = %q, want %q", fault.Op, "backward dispatch")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is cannot reach the cause through DeviceFault")
	}
	want := "device fault during backward dispatch: queue submit refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if errors.Is(ErrUnsupportedBackend, ErrNoAdapter) {
		t.Error("ErrUnsupportedBackend matches ErrNoAdapter")
	}
	// wrapped sentinels must still match
	wrapped := errors.Wrap(ErrNoAdapter, "requesting adapter")
	if !errors.Is(wrapped, ErrNoAdapter) {
		t.Error("wrapped ErrNoAdapter no longer matches")
	}
}
