// Package address classifies user-supplied device strings against
// whitelist/blacklist/greylist policy and produces the effective address
// string the rest of the engine must use.
package address

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/engineconfig"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/security"
)

// Status is the outcome of Resolve.
type Status int

const (
	Accept Status = iota
	RejectBanned
	RejectRisky
	RejectStdioBanned
	Error
)

func (s Status) String() string {
	switch s {
	case Accept:
		return "accept"
	case RejectBanned:
		return "reject-banned"
	case RejectRisky:
		return "reject-risky"
	case RejectStdioBanned:
		return "reject-stdio-banned"
	default:
		return "error"
	}
}

// MMCProber answers whether a path is a known MMC (SCSI/MMC optical) device
// node. It is satisfied by internal/burnbackend.Backend in production and by
// a trivial fake in tests, keeping the Address Resolver decoupled from the
// real transport.
type MMCProber interface {
	IsMMCDevice(path string) bool
}

// StdoutFDResolver substitutes the recorded stdout descriptor number for the
// stdio:/dev/fd/1 special case.
type StdoutFDResolver interface {
	DeclaredStdoutFD() (fd int, declared bool)
}

// Resolver resolves raw address strings against engine-scoped policy.
type Resolver struct {
	cfg   *engineconfig.Configuration
	mmc   MMCProber
	stdfd StdoutFDResolver
}

// New builds a Resolver bound to cfg, using mmc for MMC detection and stdfd
// for the stdio:/dev/fd/1 special case (stdfd may be nil: then the special
// case always rejects, matching "only accepted if the caller declared fd 1
// at startup").
func New(cfg *engineconfig.Configuration, mmc MMCProber, stdfd StdoutFDResolver) *Resolver {
	return &Resolver{cfg: cfg, mmc: mmc, stdfd: stdfd}
}

const (
	prefixStdio = "stdio:"
	prefixMMC   = "mmc:"
)

// Result carries the resolved status plus, on Accept, the effective address
// string the rest of the engine must use.
type Result struct {
	Status    Status
	Effective string
	Reason    string // category for the FAILURE diagnostic: "banned"/"risky"/"not MMC"/"not existing"
}

// Resolve classifies raw: prefix stripping, working-directory anchoring,
// MMC probing, list consultation, effective-address construction, and the
// global stdio-write ban, in that order.
func (r *Resolver) Resolve(raw string) (Result, error) {
	if err := security.ValidateString("address", raw, security.DefaultLimits()); err != nil {
		return Result{Status: Error}, diag.Wrap(diag.KindBounds, "invalid address string", err)
	}

	// Step 1: strip optional prefix, remember which one.
	var prefix string
	rest := raw
	switch {
	case strings.HasPrefix(raw, prefixStdio):
		prefix = prefixStdio
		rest = strings.TrimPrefix(raw, prefixStdio)
	case strings.HasPrefix(raw, prefixMMC):
		prefix = prefixMMC
		rest = strings.TrimPrefix(raw, prefixMMC)
	}

	// Edge case: stdio:/dev/fd/1 needs a declared stdout fd.
	if prefix == prefixStdio && rest == "/dev/fd/1" {
		if r.stdfd == nil {
			return Result{Status: Error, Reason: "not existing"}, diag.New(diag.KindResource, "stdio:/dev/fd/1 requires a declared stdout descriptor")
		}
		fd, declared := r.stdfd.DeclaredStdoutFD()
		if !declared {
			return Result{Status: Error, Reason: "not existing"}, diag.New(diag.KindResource, "stdio:/dev/fd/1 requires a declared stdout descriptor")
		}
		rest = "/dev/fd/" + strconv.Itoa(fd)
	}

	// Step 2: anchor relative paths at the process working directory.
	anchored := rest
	if prefix != prefixMMC && !filepath.IsAbs(rest) && !strings.HasPrefix(rest, "/dev/fd/") {
		wd, err := os.Getwd()
		if err != nil {
			return Result{Status: Error}, diag.Wrap(diag.KindResource, "resolve working directory", err)
		}
		anchored = filepath.Join(wd, rest)
	}

	// Step 3: ask the Burn Backend whether the path is a known MMC node.
	isMMC := prefix == prefixMMC
	if !isMMC && r.mmc != nil {
		isMMC = r.mmc.IsMMCDevice(anchored)
	}

	// Step 4: whitelist -> accept unconditionally.
	if matchAny(r.cfg.Addresses.Whitelist, anchored) {
		return r.accept(prefix, anchored, isMMC)
	}

	// Step 5: blacklist -> reject.
	if matchAny(r.cfg.Addresses.Blacklist, anchored) {
		return Result{Status: RejectBanned, Reason: "banned"}, nil
	}

	// Step 6: no prefix, not MMC, greylist -> reject with hint.
	if prefix == "" && !isMMC && matchAny(r.cfg.Addresses.Greylist, anchored) {
		return Result{Status: RejectRisky, Reason: "risky"}, nil
	}

	return r.accept(prefix, anchored, isMMC)
}

func (r *Resolver) accept(prefix, anchored string, isMMC bool) (Result, error) {
	// Step 7: construct the effective address.
	effective := anchored
	switch {
	case prefix == prefixMMC:
		effective = anchored // mmc: prefix strips down to bare path
	case prefix == "" && !isMMC:
		effective = prefixStdio + anchored
	case prefix == prefixStdio:
		effective = prefixStdio + anchored
	}

	// Step 8: if result is stdio:... and write-stdio is globally banned, reject.
	if strings.HasPrefix(effective, prefixStdio) && r.cfg.WriteStdioBanned {
		return Result{Status: RejectStdioBanned, Reason: "not MMC"}, nil
	}

	return Result{Status: Accept, Effective: effective}, nil
}

func matchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, s); err == nil && ok {
			return true
		}
	}
	return false
}
