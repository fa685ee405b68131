package main

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend/nulldrive"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
)

// openFileDrive loads an image file into an in-memory emulated drive and
// acquires it with the requested roles. The real transport behind an
// optical device is an external collaborator; for file-backed targets the
// emulated drive is sufficient to exercise every engine path.
func openFileDrive(path string, roles drive.RoleBits) (*drive.Handle, *nulldrive.Drive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read image file: %w", err)
	}

	blocks := int64(len(data)+2047) / 2048
	d := nulldrive.NewDrive(path, burnbackend.ProfileNonRemovable, burnbackend.StatusFull, blocks)
	copy(d.Data, data)
	d.IsEmulated = true

	backend := nulldrive.NewBackend(d)
	reg := drive.NewRegistry()
	h, err := reg.Acquire(backend, path, roles, false)
	if err != nil {
		return nil, nil, err
	}
	return h, d, nil
}
