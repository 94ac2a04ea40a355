// Package cmd provides the command-line interface of GCMTools.
// GCMTools extracts, rebuilds, inspects and edits GameCube disc images
// (ISO/GCM) and the FST filesystem they carry.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gcmtools",
	Short: "Tools for unpacking, repacking and editing GameCube disc images",
	Long: `GCMTools - utilities for GameCube disc images (ISO/GCM).

Currently supports:
  - Extracting the FST filesystem and system files to a directory
  - Rebuilding an image from an extracted directory
  - Changing the game ID and title in a header
  - Listing header fields, regions and files
  - Inserting and deleting files in place with minimal rewrites
  - Creating opening.bnr banners

Examples:
  gcmtools extract game.iso ./root
  gcmtools rebuild ./root game_modified.iso
  gcmtools set-header game.iso GTST01 "Test Disc"
  gcmtools read game.iso --format yaml
  gcmtools fs game.iso insert audio/new.hps ./new.hps delete audio/old.hps
  gcmtools banner create banner.png opening.bnr --title "My Game"

Use 'gcmtools [command] --help' for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
