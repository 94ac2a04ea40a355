package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg"
	"github.com/hansbonini/gcmtools/pkg/disc"
	"github.com/spf13/cobra"
)

// extractCmd unpacks a disc image into a directory.
var extractCmd = &cobra.Command{
	Use:   "extract [iso] [directory]",
	Short: "Extract files and system data from a disc image",
	Long: `Extract every file of the FST filesystem into a directory.

The header, apploader and boot DOL are written to &&systemdata/ISO.hdr,
&&systemdata/AppLoader.ldr and &&systemdata/Start.dol. The directory
defaults to "root" and must be empty unless --force is given. Paths the
host refuses are reported and skipped unless --strict is given.

Examples:
  gcmtools extract game.iso
  gcmtools extract -v game.iso ./root`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return fmt.Errorf("error getting force flag: %w", err)
		}

		strict, err := cmd.Flags().GetBool("strict")
		if err != nil {
			return fmt.Errorf("error getting strict flag: %w", err)
		}

		isoPath := args[0]
		outDir := "root"
		if len(args) > 1 {
			outDir = args[1]
		}

		fmt.Printf("Disc image: %s\n", isoPath)
		fmt.Printf("Output directory: %s\n", outDir)

		stats, err := pkg.NewDiscProcessor().Extract(isoPath, outDir, disc.ExtractOptions{Force: force, Strict: strict})
		if err != nil {
			return err
		}

		fmt.Println("Disc image extracted successfully!")
		fmt.Printf("- %d files, %d directories, %d bytes\n", stats.Files, stats.Dirs, stats.Bytes)
		if len(stats.Failed) > 0 {
			fmt.Printf("- %d paths could not be written\n", len(stats.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	addVerboseFlag(extractCmd.Flags())
	extractCmd.Flags().BoolP("force", "f", false, "Extract into a directory that is not empty")
	extractCmd.Flags().Bool("strict", false, "Stop at the first path that cannot be written")
}
