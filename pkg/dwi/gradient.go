package dwi

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DefaultB0Threshold is the b-value below which a volume is treated as a
// non-diffusion-weighted (b=0) reference, in s/mm^2.
const DefaultB0Threshold = 50.0

// Gradient describes the diffusion encoding of a single acquired volume:
// a unit direction vector and a b-value (diffusion weighting strength).
type Gradient struct {
	// Dir is the diffusion encoding direction. For b=0 volumes the
	// direction is meaningless and conventionally zero.
	Dir [3]float64

	// B is the b-value in s/mm^2.
	B float64
}

// Norm returns the Euclidean length of the direction vector.
func (g Gradient) Norm() float64 {
	return math.Sqrt(g.Dir[0]*g.Dir[0] + g.Dir[1]*g.Dir[1] + g.Dir[2]*g.Dir[2])
}

// GradientTable is the ordered sequence of diffusion encodings, one per
// volume on the 4th axis of a DWI dataset.
type GradientTable struct {
	// Gradients holds one entry per acquired volume, in acquisition order.
	Gradients []Gradient

	// B0Threshold is the b-value below which a volume counts as b=0.
	B0Threshold float64
}

// NewGradientTable builds a table from per-volume gradients with the default
// b=0 threshold. Non-zero directions are normalized to unit length.
func NewGradientTable(gradients []Gradient) *GradientTable {
	t := &GradientTable{
		Gradients:   make([]Gradient, len(gradients)),
		B0Threshold: DefaultB0Threshold,
	}
	copy(t.Gradients, gradients)
	for i := range t.Gradients {
		g := &t.Gradients[i]
		if n := g.Norm(); n > 0 {
			floats.Scale(1/n, g.Dir[:])
		}
	}
	return t
}

// LoadGradientTable reads a whitespace-separated text file with one row per
// volume and four columns: direction x, y, z and b-value. Blank lines and
// lines starting with '#' are skipped.
func LoadGradientTable(path string) (*GradientTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gradient table: %w", err)
	}
	defer f.Close()

	var gradients []Gradient
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return nil, fmt.Errorf("gradient table line %d: expected 4 columns, got %d", line, len(fields))
		}
		var vals [4]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("gradient table line %d: %w", line, err)
			}
			vals[i] = v
		}
		gradients = append(gradients, Gradient{
			Dir: [3]float64{vals[0], vals[1], vals[2]},
			B:   vals[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gradient table: %w", err)
	}
	if len(gradients) == 0 {
		return nil, fmt.Errorf("gradient table %s contains no entries", path)
	}
	return NewGradientTable(gradients), nil
}

// Len returns the number of entries (acquired volumes) in the table.
func (t *GradientTable) Len() int {
	return len(t.Gradients)
}

// IsB0 reports whether the i-th entry is a b=0 (reference) volume.
func (t *GradientTable) IsB0(i int) bool {
	return t.Gradients[i].B < t.B0Threshold
}

// B0Indices returns the positions of all b=0 entries, in order.
func (t *GradientTable) B0Indices() []int {
	var idx []int
	for i := range t.Gradients {
		if t.IsB0(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// DWIndices returns the positions of all diffusion-weighted (non-b=0)
// entries, in order.
func (t *GradientTable) DWIndices() []int {
	var idx []int
	for i := range t.Gradients {
		if !t.IsB0(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Subset returns a new table containing the entries at the given positions,
// in the given order. The b=0 threshold is carried over.
func (t *GradientTable) Subset(indices []int) *GradientTable {
	sub := &GradientTable{
		Gradients:   make([]Gradient, len(indices)),
		B0Threshold: t.B0Threshold,
	}
	for i, idx := range indices {
		sub.Gradients[i] = t.Gradients[idx]
	}
	return sub
}
