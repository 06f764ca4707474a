// Package imageio holds the decoded pixel data handed to the pipeline and the
// conversions to Go images used for display.
package imageio

import (
	"fmt"
	"image"
	"image/color"
)

const maxDimension = 32768

// Image is an interleaved 8-bit image. Pix holds Width*Height*Channels
// samples, row by row; colour images keep OpenCV's BGR(A) channel order.
type Image struct {
	Pix      []uint8
	Width    int
	Height   int
	Channels int
	Format   string
}

// New wraps pix after checking it matches the geometry. A 0x0 image is
// allowed so callers can represent empty decodes; the pipeline rejects it.
func New(width, height, channels int, pix []uint8) (*Image, error) {
	if err := ValidateDimensions(width, height, channels); err != nil {
		return nil, err
	}
	if want := width * height * channels; len(pix) != want {
		return nil, fmt.Errorf("pixel data has %d samples, %dx%dx%d needs %d",
			len(pix), width, height, channels, want)
	}
	return &Image{Pix: pix, Width: width, Height: height, Channels: channels}, nil
}

// ValidateDimensions rejects negative sizes, sizes above 32768 and channel
// counts other than 1, 3 and 4.
func ValidateDimensions(width, height, channels int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("dimensions %dx%d exceed maximum size %d", width, height, maxDimension)
	}
	switch channels {
	case 1, 3, 4:
		return nil
	default:
		return fmt.Errorf("unsupported channel count: %d", channels)
	}
}

// FromGray copies a Go grayscale image.
func FromGray(g *image.Gray) *Image {
	b := g.Bounds()
	img := &Image{
		Pix:      make([]uint8, b.Dx()*b.Dy()),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: 1,
		Format:   "gray",
	}
	for y := 0; y < b.Dy(); y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(img.Pix[y*b.Dx():], g.Pix[off:off+b.Dx()])
	}
	return img
}

// Len is the number of samples.
func (i *Image) Len() int {
	return len(i.Pix)
}

func (i *Image) Empty() bool {
	return i == nil || len(i.Pix) == 0
}

// Like returns a new image with the same geometry holding pix.
func (i *Image) Like(pix []uint8) *Image {
	return &Image{
		Pix:      pix,
		Width:    i.Width,
		Height:   i.Height,
		Channels: i.Channels,
		Format:   i.Format,
	}
}

func (i *Image) String() string {
	return fmt.Sprintf("%dx%dx%d", i.Width, i.Height, i.Channels)
}

// ToImage converts to a Go image: grayscale for one channel, RGBA for BGR
// and NRGBA for BGRA.
func (i *Image) ToImage() (image.Image, error) {
	if i.Empty() {
		return nil, fmt.Errorf("image is empty")
	}

	rect := image.Rect(0, 0, i.Width, i.Height)
	switch i.Channels {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < i.Height; y++ {
			copy(img.Pix[y*img.Stride:], i.Pix[y*i.Width:(y+1)*i.Width])
		}
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for y := 0; y < i.Height; y++ {
			for x := 0; x < i.Width; x++ {
				off := (y*i.Width + x) * 3
				img.SetRGBA(x, y, color.RGBA{R: i.Pix[off+2], G: i.Pix[off+1], B: i.Pix[off], A: 255})
			}
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		for y := 0; y < i.Height; y++ {
			for x := 0; x < i.Width; x++ {
				off := (y*i.Width + x) * 4
				img.SetNRGBA(x, y, color.NRGBA{R: i.Pix[off+2], G: i.Pix[off+1], B: i.Pix[off], A: i.Pix[off+3]})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", i.Channels)
	}
}
