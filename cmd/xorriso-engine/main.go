// Command xorriso-engine drives the engine's internal packages against
// file-backed targets: media inspection, block-range verification,
// session planning, and address-policy resolution.
package main

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

func main() {
	if err := createRootCommand().Execute(); err != nil {
		if de, ok := err.(*diagError); ok {
			fmt.Fprintf(os.Stderr, "FAILURE: %s", de.err)
			if de.hint != "" {
				fmt.Fprintf(os.Stderr, " (HINT: %s)", de.hint)
			}
			fmt.Fprintln(os.Stderr)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// diagError carries a diag.Error's hint through cobra's plain error
// return so main can render the FAILURE/HINT pair.
type diagError struct {
	err  error
	hint string
}

func (d *diagError) Error() string { return d.err.Error() }

func wrapDiagError(err error) error {
	if err == nil {
		return nil
	}
	var de *diag.Error
	if e, ok := err.(*diag.Error); ok {
		de = e
	}
	if de == nil {
		return err
	}
	return &diagError{err: de, hint: de.Hint}
}
