package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/drive"
	"github.com/open-edge-platform/xorriso-engine/internal/tocinspect"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/logger"
)

// Output format command flags
var (
	inspectFormat string = "text" // Output format for the inspection report
	inspectPretty bool   = false  // Pretty-print JSON output
)

// createInspectCommand creates the inspect subcommand
func createInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [flags] IMAGE_FILE",
		Short: "reports drive, media, and TOC layout for a target",
		Long: `Inspect acquires a file-backed target, reads its profile,
		status, capacity and session table, and renders the media report:
		drive and media identification, readable/writable block counts,
		the TOC layout with per-session Volume Ids, and any per-profile
		hints or warnings.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch inspectFormat {
			case "text", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported --format %q (supported: text, json, yaml)", inspectFormat)
			}
		},
		RunE:              executeInspect,
		ValidArgsFunction: imageFileCompletion,
	}

	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text",
		"Specify the output format for the media report")

	inspectCmd.Flags().BoolVar(&inspectPretty, "pretty", false,
		"Pretty-print JSON output (only for --format json)")

	return inspectCmd
}

// executeInspect handles the inspect command execution logic
func executeInspect(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	imageFile := args[0]
	if err := ensureFileExists(imageFile); err != nil {
		return err
	}
	log.Infof("Inspecting target: %s", imageFile)

	h, d, err := openFileDrive(imageFile, drive.RoleIndev)
	if err != nil {
		return wrapDiagError(err)
	}

	sink := diag.NewSink(loadedConfig.AbortThreshold)
	ins := tocinspect.New(sink)

	sessions := tocinspect.Sessions{{Number: 1, StartBlock: 0, BlockCount: d.BlocksTotal}}
	report, err := ins.Inspect(h, sessions, &tocinspect.FileVolumeIDReader{Path: imageFile})
	if err != nil {
		return wrapDiagError(err)
	}

	return writeReport(cmd, report, inspectFormat, inspectPretty)
}

func writeReport(cmd *cobra.Command, report *tocinspect.Report, format string, pretty bool) error {
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		tocinspect.PrintReport(out, report)
		return nil

	case "json":
		var (
			b   []byte
			err error
		)
		if pretty {
			b, err = json.MarshalIndent(report, "", "  ")
		} else {
			b, err = json.Marshal(report)
		}
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil

	case "yaml":
		b, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
