package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addVerboseFlag registers the -v flag shared by every command.
func addVerboseFlag(flags *pflag.FlagSet) {
	flags.BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
}

// applyVerbose enables debug logging when -v was given.
func applyVerbose(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("error getting verbose flag: %w", err)
	}
	common.SetVerboseMode(verbose)
	return nil
}

// changedUint32 returns the flag value and whether it was set on the
// command line.
func changedUint32(flags *pflag.FlagSet, name string) (uint32, bool, error) {
	v, err := flags.GetUint32(name)
	if err != nil {
		return 0, false, fmt.Errorf("error getting %s flag: %w", name, err)
	}
	return v, flags.Changed(name), nil
}

// changedBool is changedUint32 for boolean flags.
func changedBool(flags *pflag.FlagSet, name string) (bool, bool, error) {
	v, err := flags.GetBool(name)
	if err != nil {
		return false, false, fmt.Errorf("error getting %s flag: %w", name, err)
	}
	return v, flags.Changed(name), nil
}
