// Package display renders the human-facing confirmation and failure
// banners the engine prints after a write or verification run completes.
package display

import (
	"fmt"
	"io"

	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
)

// PrintWriteConfirmation prints the success banner a completed write ends
// with.
func PrintWriteConfirmation(w io.Writer, address string, sessionStartLBA, imageBlocks int64) {
	log := logger.Logger()
	log.Infof("Write completed: address=%s sessionStart=%d imageBlocks=%d", address, sessionStartLBA, imageBlocks)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "====================================================================")
	fmt.Fprintln(w, "  WRITE SUCCESSFUL")
	fmt.Fprintln(w, "====================================================================")
	fmt.Fprintf(w, "  Medium:        %s\n", address)
	fmt.Fprintf(w, "  Session start: %d\n", sessionStartLBA)
	fmt.Fprintf(w, "  Image blocks:  %d\n", imageBlocks)
	fmt.Fprintln(w, "====================================================================")
	fmt.Fprintln(w, "")
}

// PrintWriteFailure prints the FAILURE diagnostic plus HINT line a failed
// write ends with.
func PrintWriteFailure(w io.Writer, address, reason, hint string) {
	log := logger.Logger()
	log.Errorf("Write failed: address=%s reason=%s hint=%s", address, reason, hint)

	fmt.Fprintf(w, "FAILURE: write to %q failed: %s\n", address, reason)
	if hint != "" {
		fmt.Fprintf(w, "HINT: %s\n", hint)
	}
}

// PrintAddressRejection prints the single-line FAILURE diagnostic for a
// rejected address, quoting the address and its rejection category.
func PrintAddressRejection(w io.Writer, address, category string) {
	log := logger.Logger()
	log.Errorf("Address rejected: address=%s category=%s", address, category)
	fmt.Fprintf(w, "FAILURE: address %q rejected (%s)\n", address, category)
}
