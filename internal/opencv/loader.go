// Package opencv decodes image files with OpenCV into imageio images.
package opencv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"histeq/internal/failure"
	"histeq/internal/imageio"
	"histeq/internal/logger"
)

// depthMask extracts the element depth from a Mat type.
const depthMask = 7

// Loader reads images from disk, keeping their channels as stored.
type Loader struct {
	log logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Loader{log: log}
}

// Load decodes path. Every failure is a decode error.
func (l *Loader) Load(path string) (*imageio.Image, error) {
	const op = "load image"

	if _, err := os.Stat(path); err != nil {
		return nil, failure.Decode(op, err)
	}

	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	defer mat.Close()

	if err := validateMat(mat); err != nil {
		return nil, failure.Decode(op, fmt.Errorf("%s: %w", path, err))
	}

	img, err := imageio.New(mat.Cols(), mat.Rows(), mat.Channels(), mat.ToBytes())
	if err != nil {
		return nil, failure.Decode(op, fmt.Errorf("%s: %w", path, err))
	}
	img.Format = formatOf(path)

	l.log.Info("ImageLoader", "image loaded successfully", map[string]interface{}{
		"path":     path,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
		"format":   img.Format,
	})
	return img, nil
}

func validateMat(mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("OpenCV could not decode the file")
	}
	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", mat.Cols(), mat.Rows())
	}
	if int(mat.Type())&depthMask != int(gocv.MatTypeCV8U) {
		return fmt.Errorf("unsupported MatType %d, only 8-bit images are supported", int(mat.Type()))
	}
	if !mat.IsContinuous() {
		return fmt.Errorf("decoded Mat is not continuous")
	}
	return nil
}

func formatOf(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pgm", ".ppm", ".pnm":
		return "pnm"
	case ".tiff", ".tif":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	case "":
		return "unknown"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
