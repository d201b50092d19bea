// Package binary locates the external tools peaq shells out to.
package binary

import (
	"fmt"
	"os/exec"

	"github.com/farcloser/primordium/fault"
)

// Require returns the full path of binName, or fault.ErrMissingRequirements when it is not in PATH.
func Require(binName string) (string, error) {
	path, err := exec.LookPath(binName)
	if err != nil {
		return "", fmt.Errorf("%w: %s", fault.ErrMissingRequirements, binName)
	}

	return path, nil
}
