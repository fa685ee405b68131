package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/xorriso-engine/internal/address"
	"github.com/open-edge-platform/xorriso-engine/internal/utils/display"
)

// createResolveCommand creates the resolve subcommand
func createResolveCommand() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve [flags] ADDRESS",
		Short: "classifies a device address against the configured policy",
		Long: `Resolve runs an address string through the accept/reject
		policy: whitelist, blacklist, and greylist consultation, prefix
		handling, and the effective-address construction the rest of the
		engine would use.`,
		Args: cobra.ExactArgs(1),
		RunE: executeResolve,
	}
	return resolveCmd
}

// executeResolve handles the resolve command execution logic
func executeResolve(cmd *cobra.Command, args []string) error {
	raw := args[0]
	out := cmd.OutOrStdout()

	resolver := address.New(loadedConfig, nil, nil)
	res, err := resolver.Resolve(raw)
	if err != nil {
		return wrapDiagError(err)
	}

	if res.Status != address.Accept {
		display.PrintAddressRejection(out, raw, res.Reason)
		if res.Status == address.RejectRisky {
			fmt.Fprintln(out, `HINT: prepend "stdio:" to use this address anyway`)
		}
		return fmt.Errorf("address %q rejected (%s)", raw, res.Status)
	}

	fmt.Fprintf(out, "accepted: %s\n", res.Effective)
	return nil
}
