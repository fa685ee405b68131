package tocinspect

import (
	"strings"

	"github.com/diskfs/go-diskfs"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
)

// FileVolumeIDReader reads Volume Ids out of a file-backed medium by
// opening it as a disk image and asking the contained filesystem for its
// label. It only answers for session start block 0, the single session a
// plain image file carries; deeper sessions need the PVD read off the
// medium itself.
type FileVolumeIDReader struct {
	Path string
}

// ReadVolumeID returns the 32-character Volume Id at startBlock.
func (f *FileVolumeIDReader) ReadVolumeID(startBlock int64) (string, error) {
	if startBlock != 0 {
		return "", diag.New(diag.KindBounds, "file-backed volume id lookup supports only session start 0")
	}
	d, err := diskfs.Open(f.Path)
	if err != nil {
		return "", diag.Wrap(diag.KindResource, "open image file "+f.Path, err)
	}
	defer d.Close()

	fs, err := d.GetFilesystem(0)
	if err != nil {
		return "", diag.Wrap(diag.KindFormat, "no filesystem in image file "+f.Path, err)
	}
	label := strings.TrimRight(fs.Label(), " ")
	if len(label) > 32 {
		label = label[:32]
	}
	return label, nil
}
