package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"io"
	"io/fs"
	"os"

	"golang.org/x/image/draw"

	"github.com/born-ml/captioner/internal/tensor"
)

// Normalization constants.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ImageLoader decodes images into normalized, channel-first tensors.
type ImageLoader struct {
	Size int        // Square output side
	Mean [3]float32 // Per-channel mean subtracted after scaling to [0, 1]
	Std  [3]float32 // Per-channel divisor
}

// NewImageLoader returns a loader producing [3, size, size] tensors with
// ImageNet normalization.
func NewImageLoader(size int) *ImageLoader {
	return &ImageLoader{Size: size, Mean: ImageNetMean, Std: ImageNetStd}
}

// Decode reads a JPEG or PNG image and returns it as [3, Size, Size].
func (l *ImageLoader) Decode(r io.Reader) (*tensor.Tensor[float32], error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return l.FromImage(img), nil
}

// FromImage resizes with bilinear interpolation, flattens transparency
// onto white and normalizes.
func (l *ImageLoader) FromImage(img image.Image) *tensor.Tensor[float32] {
	dst := image.NewRGBA(image.Rect(0, 0, l.Size, l.Size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return l.normalize(dst)
}

func (l *ImageLoader) normalize(img *image.RGBA) *tensor.Tensor[float32] {
	out := tensor.Zeros[float32](tensor.Shape{3, l.Size, l.Size})
	data := out.Data()
	plane := l.Size * l.Size
	for y := 0; y < l.Size; y++ {
		for x := 0; x < l.Size; x++ {
			off := img.PixOffset(x, y)
			i := y*l.Size + x
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[off+c]) / 255
				data[c*plane+i] = (v - l.Mean[c]) / l.Std[c]
			}
		}
	}
	return out
}

// ImageSource opens images by name.
type ImageSource interface {
	Open(name string) (io.ReadCloser, error)
}

// FSSource serves images from a file system. Names must be valid fs paths,
// so they cannot escape the root.
type FSSource struct {
	FS fs.FS
}

// DirSource serves images from a directory.
func DirSource(dir string) FSSource {
	return FSSource{FS: os.DirFS(dir)}
}

// Open opens the named image.
func (s FSSource) Open(name string) (io.ReadCloser, error) {
	return s.FS.Open(name)
}

// Load opens and decodes one image from src.
func (l *ImageLoader) Load(src ImageSource, name string) (*tensor.Tensor[float32], error) {
	f, err := src.Open(name)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	t, err := l.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", name, err)
	}
	return t, nil
}
