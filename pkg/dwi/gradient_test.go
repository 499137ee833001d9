package dwi

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestNewGradientTableNormalizes verifies that non-zero directions come out
// of construction with unit length while b=0 rows stay zero.
func TestNewGradientTableNormalizes(t *testing.T) {
	table := NewGradientTable([]Gradient{
		{Dir: [3]float64{0, 0, 0}, B: 0},
		{Dir: [3]float64{2, 0, 0}, B: 1000},
		{Dir: [3]float64{1, 1, 1}, B: 1000},
	})

	if norm := table.Gradients[0].Norm(); norm != 0 {
		t.Errorf("Expected b=0 direction to stay zero, got norm %f", norm)
	}
	for i := 1; i < 3; i++ {
		if norm := table.Gradients[i].Norm(); math.Abs(norm-1) > 1e-12 {
			t.Errorf("Expected unit direction at %d, got norm %f", i, norm)
		}
	}
}

// TestGradientTableIndices checks the b=0 / diffusion-weighted partition.
func TestGradientTableIndices(t *testing.T) {
	table := NewGradientTable([]Gradient{
		{B: 0},
		{Dir: [3]float64{1, 0, 0}, B: 1000},
		{B: 5}, // below threshold, still b=0
		{Dir: [3]float64{0, 1, 0}, B: 2000},
	})

	b0 := table.B0Indices()
	if len(b0) != 2 || b0[0] != 0 || b0[1] != 2 {
		t.Errorf("Expected b=0 indices [0 2], got %v", b0)
	}

	dw := table.DWIndices()
	if len(dw) != 2 || dw[0] != 1 || dw[1] != 3 {
		t.Errorf("Expected DW indices [1 3], got %v", dw)
	}

	if !table.IsB0(2) {
		t.Errorf("Expected entry with b=5 to count as b=0 under threshold %f", table.B0Threshold)
	}
}

// TestGradientTableSubset verifies order-preserving subsetting.
func TestGradientTableSubset(t *testing.T) {
	table := NewGradientTable([]Gradient{
		{B: 0},
		{Dir: [3]float64{1, 0, 0}, B: 1000},
		{Dir: [3]float64{0, 1, 0}, B: 1000},
	})

	sub := table.Subset([]int{2, 0})
	if sub.Len() != 2 {
		t.Fatalf("Expected subset of length 2, got %d", sub.Len())
	}
	if sub.Gradients[0] != table.Gradients[2] {
		t.Errorf("Expected first subset entry to equal original entry 2")
	}
	if sub.Gradients[1] != table.Gradients[0] {
		t.Errorf("Expected second subset entry to equal original entry 0")
	}
	if sub.B0Threshold != table.B0Threshold {
		t.Errorf("Expected subset to carry the b=0 threshold")
	}
}

// TestLoadGradientTable reads a 4-column text file with comments and blank
// lines interleaved.
func TestLoadGradientTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grad.txt")
	content := "# direction x y z, b-value\n" +
		"0 0 0 0\n" +
		"\n" +
		"1 0 0 1000\n" +
		"0 0.7071 0.7071 2000\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write gradient file: %v", err)
	}

	table, err := LoadGradientTable(path)
	if err != nil {
		t.Fatalf("LoadGradientTable failed: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", table.Len())
	}
	if table.Gradients[2].B != 2000 {
		t.Errorf("Expected b=2000 for last entry, got %f", table.Gradients[2].B)
	}
	if norm := table.Gradients[2].Norm(); math.Abs(norm-1) > 1e-4 {
		t.Errorf("Expected loaded direction to be normalized, got norm %f", norm)
	}
}

// TestLoadGradientTableRejectsMalformed ensures column-count errors surface.
func TestLoadGradientTableRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	if err := os.WriteFile(path, []byte("1 0 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write gradient file: %v", err)
	}
	if _, err := LoadGradientTable(path); err == nil {
		t.Errorf("Expected error for 3-column row, got nil")
	}
}
