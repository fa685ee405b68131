// Package dataformat governs blank/format state transitions per medium
// profile: auto-format on unformatted write-once/rewritable media, fast
// and full blank conversion, and the post-full-format
// certification-pattern blank for DVD-RW sequential.
package dataformat

import (
	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
)

// BlankMode selects how much of the medium a blank request erases.
type BlankMode int

const (
	BlankAsNeeded BlankMode = iota
	BlankFast
	BlankFull
	BlankDeformat
)

// FormatMode selects the payload-size policy of a format request.
type FormatMode int

const (
	FormatDefault FormatMode = iota
	FormatSize
)

// Status reports whether a request changed the medium: 0 action taken, 2
// no action needed.
type Status int

const (
	StatusActionTaken Status = 0
	StatusNoAction    Status = 2
)

// DefaultPayloadSize is the size argument used when a profile is
// auto-formatted with no size explicitly requested.
const DefaultPayloadSize int64 = 0 // 0 instructs the backend to pick the medium's native capacity.

// Controller drives the blank/format state machine for one acquired
// Handle.
type Controller struct {
	sink *diag.Sink
}

// New builds a Controller reporting through sink (may be nil).
func New(sink *diag.Sink) *Controller {
	return &Controller{sink: sink}
}

// EnsureFormatted auto-formats unformatted DVD+RAM, BD-RE, and BD-R SRM
// media to the default payload size before writing. It is a no-op for
// profiles that do not require it.
func (c *Controller) EnsureFormatted(h *drive.Handle, profile burnbackend.Profile, status burnbackend.DiscStatus) (Status, error) {
	needsAutoFormat := (profile == burnbackend.ProfileDVDPlusRAM || profile == burnbackend.ProfileBDRE || profile == burnbackend.ProfileBDR_SRM) &&
		status == burnbackend.StatusEmpty

	if !needsAutoFormat {
		return StatusNoAction, nil
	}
	if err := h.Format(DefaultPayloadSize, int(FormatDefault), 0); err != nil {
		return StatusActionTaken, diag.Wrap(diag.KindResource, "auto-format unformatted medium", err)
	}
	if c.sink != nil {
		c.sink.Record(diag.NOTE, "dataformat", "auto-formatted unformatted medium before write", 0)
	}
	return StatusActionTaken, nil
}

// Blank applies the per-profile blank transitions.
func (c *Controller) Blank(h *drive.Handle, profile burnbackend.Profile, status burnbackend.DiscStatus, mode BlankMode) (Status, error) {
	if mode == BlankAsNeeded && status == burnbackend.StatusBlank {
		// Already blank, nothing requested beyond as-needed. Applies to
		// every profile.
		return StatusNoAction, nil
	}

	switch profile {
	case burnbackend.ProfileDVDRWSeq:
		return c.blankDVDRWSequential(h, status, mode)
	case burnbackend.ProfileDVDRWRestricted:
		if mode == BlankFast {
			return StatusNoAction, diag.New(diag.KindPolicy, "DVD-RW restricted overwrite is already formatted; fast blank rejected").
				WithHint("-blank all")
		}
	case burnbackend.ProfileDVDPlusRW:
		if mode == BlankFast {
			return StatusNoAction, nil
		}
	case burnbackend.ProfileCDR, burnbackend.ProfileCDRW:
		if profile == burnbackend.ProfileCDR {
			return StatusNoAction, diag.New(diag.KindPolicy, "CD-R is not erasable").WithHint("-blank as_needed")
		}
	}

	blankArg := blankModeToBackendArg(mode)
	if err := h.Blank(blankArg); err != nil {
		return StatusActionTaken, diag.Wrap(diag.KindResource, "blank medium", err)
	}
	return StatusActionTaken, nil
}

// blankDVDRWSequential converts fast-blank requests to full blank on
// formatted media and vice versa, then issues the post-full-format
// certification-pattern quick blank.
func (c *Controller) blankDVDRWSequential(h *drive.Handle, status burnbackend.DiscStatus, mode BlankMode) (Status, error) {
	effective := mode
	formatted := status != burnbackend.StatusEmpty
	switch {
	case mode == BlankFast && formatted:
		effective = BlankFull
	case mode == BlankFull && !formatted:
		effective = BlankFast
	}

	if err := h.Blank(blankModeToBackendArg(effective)); err != nil {
		return StatusActionTaken, diag.Wrap(diag.KindResource, "blank DVD-RW sequential", err)
	}

	if effective == BlankFull {
		// A full format leaves a certification pattern behind; a quick
		// blank zeroes it.
		if err := h.Blank(blankModeToBackendArg(BlankFast)); err != nil {
			return StatusActionTaken, diag.Wrap(diag.KindResource, "quick-blank certification pattern", err)
		}
		if c.sink != nil {
			c.sink.Record(diag.NOTE, "dataformat", "zeroed DVD-RW sequential certification pattern after full format", 0)
		}
	}
	return StatusActionTaken, nil
}

func blankModeToBackendArg(mode BlankMode) int {
	switch mode {
	case BlankFast:
		return 0
	case BlankFull:
		return 1
	case BlankDeformat:
		return 2
	default:
		return 0
	}
}
