// This file contains the opening.bnr operations.
package pkg

import (
	"os"

	"github.com/hansbonini/gcmtools/pkg/bnr"
	"github.com/hansbonini/gcmtools/pkg/common"
)

// BannerProcessor creates and decodes opening.bnr files.
type BannerProcessor struct{}

// NewBannerProcessor creates a new banner processor instance.
func NewBannerProcessor() *BannerProcessor {
	return &BannerProcessor{}
}

// Create writes a banner built from the picture at imagePath and the text
// fields of info. Pictures of another size are scaled to 96x32.
func (p *BannerProcessor) Create(imagePath, outPath string, info bnr.GameInfo) error {
	img, err := bnr.LoadImage(imagePath)
	if err != nil {
		return common.FormatError(common.ErrFailedToLoadPNG, err)
	}
	info.Banner = img
	data, err := bnr.Create(info)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	common.LogInfo(common.InfoBannerCreated, outPath, info.Region)
	return nil
}

// Export decodes the banner at bnrPath, saving its picture as a PNG and
// returning its text fields.
func (p *BannerProcessor) Export(bnrPath, imagePath string) (*bnr.GameInfo, error) {
	data, err := os.ReadFile(bnrPath)
	if err != nil {
		return nil, err
	}
	info, err := bnr.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := info.Banner.SaveImage(imagePath); err != nil {
		return nil, err
	}
	return info, nil
}
