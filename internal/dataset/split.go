package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Split defaults.
const (
	DefaultValFraction       = 0.2
	DefaultSplitSeed   int64 = 42
)

// SplitStrategy selects how records are divided into train and validation.
type SplitStrategy int

const (
	// SplitByImage holds out a fraction of the unique images; all captions
	// of an image land on the same side.
	SplitByImage SplitStrategy = iota
	// SplitNone puts every record in the training set.
	SplitNone
)

// String returns "image" or "none".
func (s SplitStrategy) String() string {
	switch s {
	case SplitByImage:
		return "image"
	case SplitNone:
		return "none"
	default:
		return fmt.Sprintf("SplitStrategy(%d)", int(s))
	}
}

// ParseSplitStrategy parses "image" or "none".
func ParseSplitStrategy(s string) (SplitStrategy, error) {
	switch s {
	case "image", "":
		return SplitByImage, nil
	case "none":
		return SplitNone, nil
	default:
		return 0, fmt.Errorf("unknown split strategy %q (want image or none)", s)
	}
}

// SplitOptions configure Split.
type SplitOptions struct {
	Strategy    SplitStrategy
	ValFraction float64
	Seed        int64
}

// Split divides records into train and validation sets. Record order is
// preserved within each set. With SplitByImage, the unique images (in
// first-seen order) are shuffled with the seed and the first
// ceil(ValFraction * images) of them form the validation set.
func Split(records []Record, opts SplitOptions) (train, val []Record, err error) {
	switch opts.Strategy {
	case SplitNone:
		return records, nil, nil
	case SplitByImage:
	default:
		return nil, nil, fmt.Errorf("dataset: unknown split strategy %v", opts.Strategy)
	}
	if opts.ValFraction < 0 || opts.ValFraction >= 1 {
		return nil, nil, fmt.Errorf("dataset: validation fraction must be in [0, 1), got %v", opts.ValFraction)
	}

	var images []string
	seen := make(map[string]bool)
	for _, r := range records {
		if !seen[r.Image] {
			seen[r.Image] = true
			images = append(images, r.Image)
		}
	}

	//nolint:gosec // deterministic shuffling, not security sensitive
	rng := rand.New(rand.NewSource(opts.Seed))
	rng.Shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })

	nVal := int(math.Ceil(opts.ValFraction * float64(len(images))))
	held := make(map[string]bool, nVal)
	for _, img := range images[:nVal] {
		held[img] = true
	}

	for _, r := range records {
		if held[r.Image] {
			val = append(val, r)
		} else {
			train = append(train, r)
		}
	}
	return train, val, nil
}
