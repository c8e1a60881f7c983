package textproc

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/Superstone-han/supertonic-v2/internal/tensor"
)

// UnknownID marks a code point outside the indexer table. It is passed to the
// model as-is.
const UnknownID int64 = -1

// Indexer maps Unicode code points onto model vocabulary ids.
type Indexer struct {
	table []int64
}

// Batch is a padded id matrix with its validity mask.
type Batch struct {
	IDs     tensor.Tensor[int64]   // [batch, width], 0 = pad
	Mask    tensor.Tensor[float32] // [batch, 1, width]
	Lengths []int
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int { return len(b.Lengths) }

// Width returns the padded sequence width.
func (b Batch) Width() int { return b.IDs.Dim(1) }

// NewIndexer wraps a code point → id table.
func NewIndexer(table []int64) *Indexer {
	return &Indexer{table: table}
}

// NewIdentityIndexer maps every code point below limit onto itself.
func NewIdentityIndexer(limit int) *Indexer {
	table := make([]int64, limit)
	for i := range table {
		table[i] = int64(i)
	}
	return &Indexer{table: table}
}

// LoadIndexer reads a unicode_indexer.json table.
func LoadIndexer(path string) (*Indexer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unicode indexer: %w", err)
	}
	var table []int64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse unicode indexer: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("unicode indexer %s is empty", path)
	}
	return &Indexer{table: table}, nil
}

// ID returns the vocabulary id of r, or UnknownID.
func (ix *Indexer) ID(r rune) int64 {
	if r >= 0 && int(r) < len(ix.table) {
		return ix.table[r]
	}
	return UnknownID
}

// Encode maps each text onto a row of ids padded with 0 to the longest text,
// together with the matching mask.
func (ix *Indexer) Encode(texts []string) Batch {
	lengths := make([]int, len(texts))
	for i, text := range texts {
		lengths[i] = utf8.RuneCountInString(text)
	}
	width := tensor.MaxLength(lengths)

	ids := tensor.New[int64](len(texts), width)
	for i, text := range texts {
		row := ids.Data[i*width : (i+1)*width]
		j := 0
		for _, r := range text {
			row[j] = ix.ID(r)
			j++
		}
	}
	return Batch{
		IDs:     ids,
		Mask:    tensor.LengthToMask(lengths, width),
		Lengths: lengths,
	}
}
