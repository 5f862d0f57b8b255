// Package dataset reads image/caption pairs and turns them into training
// batches.
//
// Captions come from a CSV file with an "image" and a "caption" column
// (the Flickr8k layout); one image usually has several captions. Images
// are decoded, resized and normalized on demand by an ImageLoader, and a
// Loader groups examples into padded batches, decoding images concurrently
// and prefetching ahead of the consumer.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Record is one caption of one image.
type Record struct {
	Image   string
	Caption string
}

// ErrMissingColumn is returned when the CSV header lacks a required column.
var ErrMissingColumn = errors.New("dataset: missing column")

// ReadCaptions reads a captions CSV file.
func ReadCaptions(path string) ([]Record, error) {
	//nolint:gosec // G304: dataset path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	records, err := ParseCaptions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseCaptions parses CSV with a header row naming "image" and "caption"
// columns in any order. Rows with an empty caption are skipped with a
// warning; rows with an empty image name are an error.
func ParseCaptions(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: reading header: %w", err)
	}
	imageCol, captionCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))) {
		case "image":
			imageCol = i
		case "caption":
			captionCol = i
		}
	}
	if imageCol < 0 {
		return nil, fmt.Errorf("%w: image", ErrMissingColumn)
	}
	if captionCol < 0 {
		return nil, fmt.Errorf("%w: caption", ErrMissingColumn)
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		line, _ := cr.FieldPos(0)
		image := strings.TrimSpace(row[imageCol])
		caption := strings.TrimSpace(row[captionCol])
		if image == "" {
			return nil, fmt.Errorf("dataset: line %d: empty image name", line)
		}
		if caption == "" {
			slog.Warn("skipping row with empty caption", "line", line, "image", image)
			continue
		}
		records = append(records, Record{Image: image, Caption: caption})
	}
	return records, nil
}

// Captions returns the caption text of every record, in order.
func Captions(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Caption
	}
	return out
}
