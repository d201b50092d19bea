package binary_test

import (
	"errors"
	"testing"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/peaq/internal/integration/binary"
)

func TestRequireMissing(t *testing.T) {
	t.Parallel()

	if _, err := binary.Require("peaq-no-such-tool"); !errors.Is(err, fault.ErrMissingRequirements) {
		t.Fatalf("expected ErrMissingRequirements, got %v", err)
	}
}
