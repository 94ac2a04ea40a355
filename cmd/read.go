package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg"
	"github.com/spf13/cobra"
)

// readCmd prints what a disc image holds.
var readCmd = &cobra.Command{
	Use:   "read [iso] [paths...]",
	Short: "Show header fields, regions and files of a disc image",
	Long: `Show the header fields, the fixed regions and the file listing of a
disc image. When paths are given only those entries, and the contents of
those directories, are listed.

Examples:
  gcmtools read game.iso
  gcmtools read game.iso audio --format yaml
  gcmtools read game.iso opening.bnr --digest`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("error getting format flag: %w", err)
		}
		withDigest, err := cmd.Flags().GetBool("digest")
		if err != nil {
			return fmt.Errorf("error getting digest flag: %w", err)
		}
		return pkg.NewDiscProcessor().Read(args[0], args[1:], format, withDigest)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
	addVerboseFlag(readCmd.Flags())
	readCmd.Flags().String("format", pkg.FormatText, "Output format: text or yaml")
	readCmd.Flags().Bool("digest", false, "Add a sha256 content digest to every file")
}
