package cmd

import (
	"fmt"

	"github.com/hansbonini/gcmtools/pkg"
	"github.com/hansbonini/gcmtools/pkg/bnr"
	"github.com/spf13/cobra"
)

// bannerCmd is the parent of the opening.bnr commands.
var bannerCmd = &cobra.Command{
	Use:   "banner",
	Short: "Create and decode opening.bnr banners",
	Long: `Create and decode opening.bnr, the banner shown by the GameCube menu.

Commands:
  create    Build a banner from a picture and text fields
  export    Save the picture of a banner as PNG and print its text

Examples:
  gcmtools banner create banner.png opening.bnr --title "My Game"
  gcmtools banner export opening.bnr banner.png`,
}

var bannerCreateCmd = &cobra.Command{
	Use:   "create [image] [opening.bnr]",
	Short: "Build a banner from a picture and text fields",
	Long: `Build a banner from a PNG, JPEG or BMP picture and text fields.
Pictures that are not 96x32 are scaled. Short titles must be under 32
bytes, full titles under 64 bytes and the description under 128 bytes.

Example:
  gcmtools banner create banner.png opening.bnr --title "My Game" \
    --developer "Me" --description "A game about things" --eu`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		flags := cmd.Flags()
		var info bnr.GameInfo
		for name, dst := range map[string]*string{
			"title":          &info.GameTitle,
			"developer":      &info.DeveloperTitle,
			"full-title":     &info.FullGameTitle,
			"full-developer": &info.FullDeveloperTitle,
			"description":    &info.Description,
		} {
			v, err := flags.GetString(name)
			if err != nil {
				return fmt.Errorf("error getting %s flag: %w", name, err)
			}
			*dst = v
		}
		if info.FullGameTitle == "" {
			info.FullGameTitle = info.GameTitle
		}
		if info.FullDeveloperTitle == "" {
			info.FullDeveloperTitle = info.DeveloperTitle
		}
		eu, err := flags.GetBool("eu")
		if err != nil {
			return fmt.Errorf("error getting eu flag: %w", err)
		}
		if eu {
			info.Region = bnr.RegionEU
		}

		if err := pkg.NewBannerProcessor().Create(args[0], args[1], info); err != nil {
			return err
		}
		fmt.Printf("Banner written to: %s\n", args[1])
		return nil
	},
}

var bannerExportCmd = &cobra.Command{
	Use:   "export [opening.bnr] [image.png]",
	Short: "Save the picture of a banner as PNG and print its text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerbose(cmd); err != nil {
			return err
		}
		info, err := pkg.NewBannerProcessor().Export(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Region:         %s\n", info.Region)
		fmt.Printf("Title:          %s\n", info.GameTitle)
		fmt.Printf("Developer:      %s\n", info.DeveloperTitle)
		fmt.Printf("Full title:     %s\n", info.FullGameTitle)
		fmt.Printf("Full developer: %s\n", info.FullDeveloperTitle)
		fmt.Printf("Description:    %s\n", info.Description)
		fmt.Printf("Picture saved to: %s\n", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bannerCmd)
	bannerCmd.AddCommand(bannerCreateCmd, bannerExportCmd)

	addVerboseFlag(bannerCreateCmd.Flags())
	bannerCreateCmd.Flags().StringP("title", "t", "", "Short game title")
	bannerCreateCmd.Flags().StringP("developer", "d", "", "Short developer name")
	bannerCreateCmd.Flags().String("full-title", "", "Full game title (defaults to --title)")
	bannerCreateCmd.Flags().String("full-developer", "", "Full developer name (defaults to --developer)")
	bannerCreateCmd.Flags().String("description", "", "Game description")
	bannerCreateCmd.Flags().Bool("eu", false, "Write a European (BNR2) banner")

	addVerboseFlag(bannerExportCmd.Flags())
}
