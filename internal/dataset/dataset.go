package dataset

import (
	"errors"
	"fmt"

	"github.com/born-ml/captioner/internal/sequence"
	"github.com/born-ml/captioner/internal/tensor"
	"github.com/born-ml/captioner/internal/vocab"
)

// ErrEmpty is returned when a dataset has no records.
var ErrEmpty = errors.New("dataset: no records")

// Example is one decoded training pair.
type Example struct {
	Image   string
	Pixels  *tensor.Tensor[float32] // [3, S, S]
	Caption []int32                 // START ... END
}

// Batch is a collated group of examples.
type Batch struct {
	Images   *tensor.Tensor[float32] // [N, 3, S, S]
	Captions *tensor.Tensor[int32]   // [N, L], PAD right-filled
	Lengths  []int                   // Unpadded length of each row
	ImageIDs []string
}

// Size returns the number of rows.
func (b *Batch) Size() int { return len(b.ImageIDs) }

// Options configure a Dataset.
type Options struct {
	Padding sequence.PadStrategy
	// GlobalMax overrides the pad length for PadGlobalMax. Zero computes it
	// from the dataset's own captions.
	GlobalMax int
}

// Dataset pairs caption records with their images.
type Dataset struct {
	records  []Record
	encoded  [][]int32
	source   ImageSource
	images   *ImageLoader
	collator sequence.Collator
	refs     map[string][]string
	order    []string
}

// New builds a Dataset. Every caption is encoded once up front.
func New(records []Record, v *vocab.Vocabulary, source ImageSource, images *ImageLoader, opts Options) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	enc := sequence.NewEncoder(v)
	d := &Dataset{
		records: records,
		encoded: make([][]int32, len(records)),
		source:  source,
		images:  images,
		refs:    make(map[string][]string),
	}
	for i, r := range records {
		d.encoded[i] = enc.EncodeCaption(r.Caption)
		if _, ok := d.refs[r.Image]; !ok {
			d.order = append(d.order, r.Image)
		}
		d.refs[r.Image] = append(d.refs[r.Image], r.Caption)
	}

	d.collator = sequence.Collator{Strategy: opts.Padding, GlobalMax: opts.GlobalMax}
	if opts.Padding == sequence.PadGlobalMax && opts.GlobalMax == 0 {
		d.collator.GlobalMax = enc.MaxLength(Captions(records))
	}
	return d, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Record returns record i.
func (d *Dataset) Record(i int) Record { return d.records[i] }

// Images returns the unique image names in first-seen order.
func (d *Dataset) Images() []string { return d.order }

// References returns every caption of image.
func (d *Dataset) References(image string) []string { return d.refs[image] }

// LoadImage decodes one image by name.
func (d *Dataset) LoadImage(name string) (*tensor.Tensor[float32], error) {
	return d.images.Load(d.source, name)
}

// Example decodes record i.
func (d *Dataset) Example(i int) (Example, error) {
	if i < 0 || i >= len(d.records) {
		return Example{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(d.records))
	}
	pixels, err := d.LoadImage(d.records[i].Image)
	if err != nil {
		return Example{}, err
	}
	return Example{Image: d.records[i].Image, Pixels: pixels, Caption: d.encoded[i]}, nil
}

// Collate stacks examples into a Batch using the dataset's pad strategy.
func (d *Dataset) Collate(examples []Example) (*Batch, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("dataset: empty batch")
	}
	seqs := make([][]int32, len(examples))
	pixels := make([]*tensor.Tensor[float32], len(examples))
	ids := make([]string, len(examples))
	for i, ex := range examples {
		seqs[i] = ex.Caption
		pixels[i] = ex.Pixels
		ids[i] = ex.Image
	}
	captions, err := d.collator.Collate(seqs)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	images, err := StackImages(pixels)
	if err != nil {
		return nil, err
	}
	return &Batch{
		Images:   images,
		Captions: captions,
		Lengths:  sequence.Lengths(captions, vocab.PAD),
		ImageIDs: ids,
	}, nil
}

// StackImages stacks same-shaped [C, H, W] tensors into [N, C, H, W].
func StackImages(images []*tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("dataset: no images to stack")
	}
	shape := images[0].Shape()
	if len(shape) != 3 {
		return nil, &tensor.ShapeError{Op: "StackImages", What: "image", Want: "[C, H, W]", Got: shape}
	}
	size := shape.NumElements()
	out := tensor.Zeros[float32](tensor.Shape{len(images), shape[0], shape[1], shape[2]})
	data := out.Data()
	for i, img := range images {
		if !img.Shape().Equal(shape) {
			return nil, &tensor.ShapeError{Op: "StackImages", What: fmt.Sprintf("image %d", i), Want: fmt.Sprint(shape), Got: img.Shape()}
		}
		copy(data[i*size:(i+1)*size], img.Data())
	}
	return out, nil
}
