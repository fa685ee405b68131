package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/open-edge-platform/xorriso-engine/internal/diag"
	"github.com/open-edge-platform/xorriso-engine/internal/engineconfig"
)

// Global command flags
var (
	configPath string // Path to an engine configuration file (JSON or YAML)
)

// loadedConfig is resolved once in the root PersistentPreRunE and shared by
// every subcommand.
var loadedConfig *engineconfig.Configuration

// createRootCommand assembles the command tree.
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xorriso-engine",
		Short: "inspect, verify, and plan writes for ISO 9660 media",
		Long: `xorriso-engine drives the hybrid ISO 9660 image engine against
		optical or file-backed targets: it inspects a medium's TOC and
		session layout, verifies readable ranges block by block with MD5
		chain recognition, plans a session write with padding and
		system-area placement, and resolves device addresses against the
		configured accept/reject policy.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				loadedConfig = engineconfig.Default()
				return nil
			}
			cfg, err := engineconfig.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("load engine config: %w", err)
			}
			loadedConfig = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to an engine configuration file (JSON or YAML)")

	// Accept underscore spellings (--iso_level) alongside the dashed ones.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.AddCommand(createInspectCommand())
	rootCmd.AddCommand(createCheckCommand())
	rootCmd.AddCommand(createPlanCommand())
	rootCmd.AddCommand(createResolveCommand())

	return rootCmd
}

// imageFileCompletion completes positional arguments with image files.
func imageFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"iso", "img"}, cobra.ShellCompDirectiveFilterFileExt
}

// readFileChecked reads a small configuration document, mapping failure to
// a Resource-kind error so the FAILURE/HINT rendering applies.
func readFileChecked(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindResource, fmt.Sprintf("read %q", path), err)
	}
	return data, nil
}

// ensureFileExists is shared argument validation for file-backed targets.
func ensureFileExists(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("image file %q: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("image file %q is a directory", path)
	}
	return nil
}
