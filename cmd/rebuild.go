package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg"
	"github.com/spf13/cobra"
)

// rebuildCmd builds a disc image from an extracted directory.
var rebuildCmd = &cobra.Command{
	Use:   "rebuild [directory] [iso]",
	Short: "Build a disc image from an extracted directory",
	Long: `Build a fresh disc image from a directory laid out like the output
of extract. System files are read from &&systemdata or from the
directory root. The image defaults to "out.iso".

Options may be loaded from a YAML file (--config) with the keys
file_alignment, fst_reserve, full_size and strict. Flags given on the
command line override the file.

Examples:
  gcmtools rebuild ./root game_modified.iso
  gcmtools rebuild --align 0x8000 --fst-reserve 0x1000 ./root
  gcmtools rebuild --config rebuild.yaml --full-size ./root game.iso`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		cfg, err := rebuildConfig(cmd)
		if err != nil {
			return err
		}

		rootDir := args[0]
		isoPath := "out.iso"
		if len(args) > 1 {
			isoPath = args[1]
		}

		fmt.Printf("Source directory: %s\n", rootDir)
		fmt.Printf("Disc image: %s\n", isoPath)

		plan, err := pkg.NewDiscProcessor().Rebuild(rootDir, isoPath, cfg)
		if err != nil {
			return err
		}

		fmt.Println("Disc image rebuilt successfully!")
		fmt.Printf("- FST at 0x%X (0x%X bytes, capacity 0x%X)\n", plan.FST.Offset, plan.FST.Size, plan.FSTCapacity)
		fmt.Printf("- %d files from 0x%X to 0x%X\n", len(plan.Files), plan.DataStart, plan.End)
		fmt.Printf("- Image size: %d bytes\n", plan.ImageSize)
		return nil
	},
}

// rebuildConfig merges the optional config file with explicit flags.
func rebuildConfig(cmd *cobra.Command) (pkg.RebuildConfig, error) {
	flags := cmd.Flags()
	cfg := pkg.DefaultRebuildConfig()

	path, err := flags.GetString("config")
	if err != nil {
		return cfg, fmt.Errorf("error getting config flag: %w", err)
	}
	if path != "" {
		if cfg, err = pkg.LoadRebuildConfig(path); err != nil {
			return cfg, err
		}
	}

	if v, set, err := changedUint32(flags, "align"); err != nil {
		return cfg, err
	} else if set {
		cfg.FileAlignment = v
	}
	if v, set, err := changedUint32(flags, "fst-reserve"); err != nil {
		return cfg, err
	} else if set {
		cfg.FSTReserve = v
	}
	if v, set, err := changedBool(flags, "full-size"); err != nil {
		return cfg, err
	} else if set {
		cfg.FullSize = v
	}
	if v, set, err := changedBool(flags, "strict"); err != nil {
		return cfg, err
	} else if set {
		cfg.Strict = v
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	addVerboseFlag(rebuildCmd.Flags())
	rebuildCmd.Flags().StringP("config", "c", "", "YAML file with rebuild options")
	rebuildCmd.Flags().Uint32P("align", "a", 4, "Alignment of every file offset (power of two, at least 4)")
	rebuildCmd.Flags().Uint32("fst-reserve", 0, "Extra FST capacity reserved for later in-place edits")
	rebuildCmd.Flags().Bool("full-size", false, "Pad the image to the full disc size")
	rebuildCmd.Flags().Bool("strict", false, "Fail on host entries that are not regular files or directories")
}
