package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/vocab"
)

// WordVectorStd is the standard deviation used for words without a
// pretrained vector.
const WordVectorStd = 0.6

// LoadWordVectors initializes the decoder embedding from GloVe-style text,
// one "word v1 v2 ... vd" line per word. d must equal the embedding size.
// Vocabulary tokens without a vector, reserved tokens included, are drawn
// from N(0, WordVectorStd) with the decoder seed. It returns how many
// tokens were found.
func (m *EncoderDecoder) LoadWordVectors(r io.Reader, v *vocab.Vocabulary) (int, error) {
	dim := m.cfg.Decoder.EmbedSize
	if v.Len() != m.cfg.Decoder.VocabSize {
		return 0, fmt.Errorf("%w: vocabulary has %d tokens, model has %d", ErrVocabularyMismatch, v.Len(), m.cfg.Decoder.VocabSize)
	}

	weight := m.decoder.Embedding().Weight.Tensor()
	data := weight.Data()
	rng := nn.NewRand(m.cfg.Decoder.Seed)
	for i := range data {
		data[i] = float32(rng.NormFloat64() * WordVectorStd)
	}

	found := make(map[int32]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != dim+1 {
			return 0, fmt.Errorf("model: word vectors line %d: %d values, want %d", line, len(fields)-1, dim)
		}
		if !v.Contains(fields[0]) {
			continue
		}
		idx := v.Index(fields[0])
		if found[idx] {
			continue
		}
		row := data[int(idx)*dim : int(idx+1)*dim]
		for j, s := range fields[1:] {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return 0, fmt.Errorf("model: word vectors line %d: %w", line, err)
			}
			row[j] = float32(f)
		}
		found[idx] = true
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("model: word vectors: %w", err)
	}
	return len(found), nil
}

// LoadWordVectorsFile reads word vectors from path.
func (m *EncoderDecoder) LoadWordVectorsFile(path string, v *vocab.Vocabulary) (int, error) {
	//nolint:gosec // G304: vector path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("model: %w", err)
	}
	defer f.Close()
	return m.LoadWordVectors(f, v)
}
