package tocinspect

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintReport renders a Report as the stable per-concept text lines, with
// a tabwriter table for the session layout.
func PrintReport(w io.Writer, r *Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Drive current:\t%s\n", r.DriveCurrent)
	fmt.Fprintf(w, "Drive type:\t%s\n", r.DriveType)
	fmt.Fprintf(w, "Media current:\t%s\n", r.MediaCurrent)
	fmt.Fprintf(w, "Media status:\t%s\n", r.MediaStatus)
	fmt.Fprintf(w, "Media blocks:\t%s\n", r.MediaBlocks)
	fmt.Fprintf(w, "Media summary:\t%s\n", r.MediaSummary)
	fmt.Fprintf(w, "Media nwa:\t%d\n", r.MediaNWA)

	fmt.Fprintln(w, "TOC layout:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTART\tBLOCKS\tVOLID")
	for _, s := range r.TOCLayout {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", s.Number, s.StartBlock, s.BlockCount, s.VolumeID)
	}
	tw.Flush()

	for _, h := range r.Hints {
		fmt.Fprintf(w, "HINT: %s\n", h)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warn)
	}
}
