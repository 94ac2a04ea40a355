package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg"
	"github.com/spf13/cobra"
)

// setHeaderCmd rewrites the game ID and title of a disc header.
var setHeaderCmd = &cobra.Command{
	Use:   "set-header [target] [game_id] [title]",
	Short: "Change the game ID and title of an image or ISO.hdr",
	Long: `Change the game ID, and optionally the title, stored in a disc header.

The target is either a disc image or a standalone ISO.hdr file. A
4-character ID replaces only the game code and keeps the maker code; a
6-character ID replaces both. Every other byte is left unchanged.

Examples:
  gcmtools set-header game.iso GTME
  gcmtools set-header root/&&systemdata/ISO.hdr GTME01 "Training Mode"`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		title := ""
		if len(args) > 2 {
			title = args[2]
		}
		if err := pkg.NewDiscProcessor().SetHeader(args[0], args[1], title); err != nil {
			return err
		}
		fmt.Printf("Header of %s updated successfully!\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setHeaderCmd)
	addVerboseFlag(setHeaderCmd.Flags())
}
