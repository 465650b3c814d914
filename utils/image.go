package utils

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageToOpenCV decodes raw image bytes into a 3-channel BGR matrix.
func ImageToOpenCV(bImage []byte) (*gocv.Mat, error) {
	srcMat, err := gocv.IMDecode(bImage, gocv.IMReadUnchanged)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	if srcMat.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	switch srcMat.Channels() {
	case 3:
		return &srcMat, nil
	case 4:
		dstMat := gocv.NewMat()
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRAToBGR)
		_ = srcMat.Close()
		return &dstMat, nil
	case 1:
		dstMat := gocv.NewMat()
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorGrayToBGR)
		_ = srcMat.Close()
		return &dstMat, nil
	default:
		channels := srcMat.Channels()
		_ = srcMat.Close()
		return nil, errors.Errorf("invalid number of channels: %d", channels)
	}
}
