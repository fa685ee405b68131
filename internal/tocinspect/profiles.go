package tocinspect

import "github.com/open-edge-platform/xorriso-engine/internal/burnbackend"

// profileNames maps MMC profile numbers onto the human names the "Drive
// type" and "Media current" report lines print.
var profileNames = map[burnbackend.Profile]string{
	burnbackend.ProfileCDR:             "CD-R",
	burnbackend.ProfileCDRW:            "CD-RW",
	burnbackend.ProfileDVDRSeq:         "DVD-R sequential",
	burnbackend.ProfileDVDRWRestricted: "DVD-RW restricted overwrite",
	burnbackend.ProfileDVDRWSeq:        "DVD-RW sequential",
	burnbackend.ProfileDVDRDL:          "DVD-R DL",
	burnbackend.ProfileDVDPlusRW:       "DVD+RW",
	burnbackend.ProfileDVDPlusR:        "DVD+R",
	burnbackend.ProfileDVDPlusRAM:      "DVD+RAM",
	burnbackend.ProfileBDR_SRM:         "BD-R sequential recording mode",
	burnbackend.ProfileBDRE:            "BD-RE",
	burnbackend.ProfileNonRemovable:    "stdio/file-backed emulation",
}

func profileName(p burnbackend.Profile) string {
	if name, ok := profileNames[p]; ok {
		return name
	}
	return "unknown"
}
