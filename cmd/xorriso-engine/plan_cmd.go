package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/xorriso-engine/internal/burnbackend"
	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
	"github.com/open-edge-platform/xorriso-engine/internal/writeplan"
)

// Plan command flags
var (
	planProfile      string = "cd-r"
	planStatus       string = "blank"
	planImageBlocks  int64
	planNWA          int64
	planPaddingBytes int64
	planAlignment    int64
	planMulti        bool
	planCharset      string = "UTF-8"
	planISOLevel     int    = 3
	planSystemArea   string
	planFormat       string = "yaml"
)

var planProfiles = map[string]burnbackend.Profile{
	"cd-r":     burnbackend.ProfileCDR,
	"cd-rw":    burnbackend.ProfileCDRW,
	"dvd-r":    burnbackend.ProfileDVDRSeq,
	"dvd-rw":   burnbackend.ProfileDVDRWSeq,
	"dvd-r-dl": burnbackend.ProfileDVDRDL,
	"dvd+rw":   burnbackend.ProfileDVDPlusRW,
	"dvd+r":    burnbackend.ProfileDVDPlusR,
	"bd-r":     burnbackend.ProfileBDR_SRM,
	"bd-re":    burnbackend.ProfileBDRE,
}

var planStatuses = map[string]burnbackend.DiscStatus{
	"blank":      burnbackend.StatusBlank,
	"appendable": burnbackend.StatusAppendable,
	"full":       burnbackend.StatusFull,
	"empty":      burnbackend.StatusEmpty,
}

// createPlanCommand creates the plan subcommand
func createPlanCommand() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan [flags]",
		Short: "computes a session plan for a prospective write",
		Long: `Plan selects the write type (SAO or TAO) for the given medium
		profile and status, computes padding and alignment for the image
		size, resolves the system-area source, and prints the resulting
		session plan without touching any medium.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := planProfiles[planProfile]; !ok {
				return fmt.Errorf("unknown --profile %q", planProfile)
			}
			if _, ok := planStatuses[planStatus]; !ok {
				return fmt.Errorf("unknown --status %q", planStatus)
			}
			switch planFormat {
			case "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported --format %q (supported: json, yaml)", planFormat)
			}
		},
		RunE: executePlan,
	}

	planCmd.Flags().StringVar(&planProfile, "profile", "cd-r", "Medium profile")
	planCmd.Flags().StringVar(&planStatus, "status", "blank", "Disc status")
	planCmd.Flags().Int64Var(&planImageBlocks, "image-blocks", 0, "Image size in 2048-byte blocks")
	planCmd.Flags().Int64Var(&planNWA, "nwa", 0, "Next writable address")
	planCmd.Flags().Int64Var(&planPaddingBytes, "padding", 0, "Requested padding in bytes")
	planCmd.Flags().Int64Var(&planAlignment, "alignment", 0, "Session alignment in blocks")
	planCmd.Flags().BoolVar(&planMulti, "multi", false, "Keep the medium appendable")
	planCmd.Flags().StringVar(&planCharset, "charset", "UTF-8", "Output charset")
	planCmd.Flags().IntVar(&planISOLevel, "iso-level", 3, "ISO 9660 level (1-3)")
	planCmd.Flags().StringVar(&planSystemArea, "system-area", "", "System-area image file (may be .xz compressed)")
	planCmd.Flags().StringVar(&planFormat, "format", "yaml", "Output format for the plan")

	return planCmd
}

// executePlan handles the plan command execution logic
func executePlan(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	profile := planProfiles[planProfile]
	status := planStatuses[planStatus]
	log.Infof("Planning session: profile=%s status=%s imageBlocks=%d", planProfile, planStatus, planImageBlocks)

	sysArea := writeplan.SystemAreaRequest{Source: writeplan.SourceDevZero}
	if planSystemArea != "" {
		sysArea = writeplan.SystemAreaRequest{
			Source:       writeplan.SourceExplicitFile,
			ExplicitPath: planSystemArea,
		}
	}

	sink := diag.NewSink(loadedConfig.AbortThreshold)
	plan, err := writeplan.Build(writeplan.PlanInput{
		OutputCharset: planCharset,
		ISOLevel:      planISOLevel,
		Padding: writeplan.PaddingInput{
			Profile:          profile,
			UserPaddingBytes: planPaddingBytes,
			ImageBlocks:      planImageBlocks,
			NWA:              planNWA,
			AlignmentBlocks:  planAlignment,
			MediaBlank:       status == burnbackend.StatusBlank,
		},
		SystemArea:   sysArea,
		Multisession: planMulti,
		Now:          time.Now(),
	}, profile, status, sink)
	if err != nil {
		return wrapDiagError(err)
	}

	out := cmd.OutOrStdout()
	doc := struct {
		WriteType string                  `json:"writeType" yaml:"writeType"`
		Padding   writeplan.PaddingResult `json:"padding" yaml:"padding"`
		Plan      *writeplan.SessionPlan  `json:"plan" yaml:"plan"`
	}{
		WriteType: plan.WriteType.String(),
		Padding:   plan.Padding,
		Plan:      plan,
	}

	switch planFormat {
	case "json":
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
	case "yaml":
		b, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
	}
	return nil
}
