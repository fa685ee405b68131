// Package tocinspect reads disc/session/track structure off an acquired
// target, formats the stable per-concept report lines, and computes
// available space and the next writable address.
package tocinspect

import (
	"fmt"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
)

// SessionInfo is one recorded session.
type SessionInfo struct {
	Number     int    `json:"number" yaml:"number"`
	StartBlock int64  `json:"startBlock" yaml:"startBlock"`
	BlockCount int64  `json:"blockCount" yaml:"blockCount"`
	VolumeID   string `json:"volumeId,omitempty" yaml:"volumeId,omitempty"`
}

// Report is the inspector's output, one field per stable report line.
type Report struct {
	DriveCurrent string        `json:"driveCurrent" yaml:"driveCurrent"`
	DriveType    string        `json:"driveType" yaml:"driveType"`
	MediaCurrent string        `json:"mediaCurrent" yaml:"mediaCurrent"`
	MediaStatus  string        `json:"mediaStatus" yaml:"mediaStatus"`
	MediaBlocks  string        `json:"mediaBlocks" yaml:"mediaBlocks"`
	MediaSummary string        `json:"mediaSummary" yaml:"mediaSummary"`
	TOCLayout    []SessionInfo `json:"tocLayout" yaml:"tocLayout"`
	MediaNWA     int64         `json:"mediaNwa" yaml:"mediaNwa"`

	Hints    []string `json:"hints,omitempty" yaml:"hints,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// VolumeIDReader reads a 32-character Volume Id from the PVD at a session's
// start block, satisfied by FileVolumeIDReader for file-backed media.
type VolumeIDReader interface {
	ReadVolumeID(startBlock int64) (string, error)
}

// Inspector produces a Report for an acquired Drive Handle.
type Inspector struct {
	sink *diag.Sink
}

// New builds an Inspector that reports through sink (may be nil).
func New(sink *diag.Sink) *Inspector {
	return &Inspector{sink: sink}
}

// Sessions is the session table the caller (normally the Burn Backend's TOC
// query, here passed in directly since that query is an external contract)
// has already read off the medium.
type Sessions []SessionInfo

// Inspect builds a Report for h, given the already-read session table and
// an optional volume-id reader.
func (ins *Inspector) Inspect(h *drive.Handle, sessions Sessions, volReader VolumeIDReader) (*Report, error) {
	profile, name, err := h.Profile()
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read profile", err)
	}
	status, err := h.DiscStatus()
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read disc status", err)
	}
	nwa, err := h.NextWritableAddress()
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read next-writable-address", err)
	}
	capacity, err := h.ReadCapacityBlocks()
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, "read capacity", err)
	}

	if name == "" {
		name = profileName(profile)
	}

	report := &Report{
		DriveCurrent: h.Address(),
		DriveType:    name,
		MediaCurrent: name,
		MediaStatus:  mediaStatusString(status),
		TOCLayout:    sessions,
		MediaNWA:     nwa,
	}

	if volReader != nil {
		for i := range report.TOCLayout {
			if vid, err := volReader.ReadVolumeID(report.TOCLayout[i].StartBlock); err == nil {
				report.TOCLayout[i].VolumeID = vid
			}
		}
	}

	writable, hints := mediaBlocks(profile, status, nwa, capacity)
	report.MediaBlocks = fmt.Sprintf("readable: %d, writable: %d", capacity, writable)
	report.Hints = append(report.Hints, hints...)
	report.MediaSummary = fmt.Sprintf("%s, %s, %d session(s)", name, report.MediaStatus, len(sessions))

	report.Warnings = append(report.Warnings, damagedMediaWarnings(profile, sessions)...)

	if ins.sink != nil {
		for _, h := range report.Hints {
			ins.sink.Record(diag.NOTE, "tocinspect", h, 0)
		}
		for _, w := range report.Warnings {
			ins.sink.Record(diag.WARNING, "tocinspect", w, 0)
		}
	}

	return report, nil
}

func mediaStatusString(s burnbackend.DiscStatus) string {
	switch s {
	case burnbackend.StatusBlank:
		return "blank"
	case burnbackend.StatusAppendable:
		return "appendable"
	case burnbackend.StatusFull:
		return "full"
	case burnbackend.StatusEmpty:
		return "empty"
	default:
		return "unsuitable"
	}
}

// mediaBlocks computes the "Media blocks" pair: readable is the read
// capacity; writable is the available space in blocks, adjusted via NWA
// for blank media; for CD-RW media that are not blank, a fixed 300-block
// lead-out reservation is subtracted. ATIP is not read.
func mediaBlocks(profile burnbackend.Profile, status burnbackend.DiscStatus, nwa, capacity int64) (writable int64, hints []string) {
	writable = capacity
	switch {
	case status == burnbackend.StatusBlank:
		writable = capacity - nwa
		hints = append(hints, fmt.Sprintf("blank media: writable space adjusted by NWA=%d", nwa))
	case profile == burnbackend.ProfileCDRW:
		// No ATIP lead-out figure is queried; the 300-sector session
		// minimum is reserved instead.
		writable -= 300
		if writable < 0 {
			writable = 0
		}
		hints = append(hints, "CD-RW: writable space reduced by a fixed 300-block lead-out reservation")
	}
	if writable < 0 {
		writable = 0
	}
	return writable, hints
}

// damagedMediaWarnings emits the per-profile warnings: DVD-RW sequential
// append constraints, DVD-R DL layer breaks, and BD-R session-count
// pressure at 300 recorded sessions.
func damagedMediaWarnings(profile burnbackend.Profile, sessions Sessions) []string {
	var warnings []string
	switch profile {
	case burnbackend.ProfileDVDRWSeq:
		warnings = append(warnings, "DVD-RW sequential: appending requires a new session, random rewrite is not available")
	case burnbackend.ProfileDVDRDL:
		warnings = append(warnings, "DVD-R DL: layer break constraints apply to session placement")
	case burnbackend.ProfileBDR_SRM:
		if len(sessions) >= 300 {
			warnings = append(warnings, fmt.Sprintf("BD-R SRM: %d sessions recorded, approaching practical session-count limits", len(sessions)))
		}
	}
	return warnings
}
