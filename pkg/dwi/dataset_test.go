package dwi

import (
	"errors"
	"math"
	"testing"
)

// testDataset builds a 2x2x2 dataset whose k-th volume is filled with the
// constant value k+1, with the given gradient scheme.
func testDataset(t *testing.T, gradients []Gradient) *Dataset {
	t.Helper()
	const w, h, d = 2, 2, 2
	stride := w * h * d
	data := make([]float64, len(gradients)*stride)
	for k := range gradients {
		for i := 0; i < stride; i++ {
			data[k*stride+i] = float64(k + 1)
		}
	}
	ds, err := NewDataset(data, w, h, d, [4][4]float64{}, NewGradientTable(gradients))
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	return ds
}

// fourDirectionScheme is one b=0 volume followed by three diffusion-weighted
// directions.
func fourDirectionScheme() []Gradient {
	return []Gradient{
		{B: 0},
		{Dir: [3]float64{1, 0, 0}, B: 1000},
		{Dir: [3]float64{0, 1, 0}, B: 1000},
		{Dir: [3]float64{0, 0, 1}, B: 1000},
	}
}

// TestNewDatasetRejectsGradientMismatch verifies the table-length invariant
// is enforced at construction.
func TestNewDatasetRejectsGradientMismatch(t *testing.T) {
	gtab := NewGradientTable(fourDirectionScheme())
	data := make([]float64, 2*2*2*3) // 3 volumes, 4 table entries
	if _, err := NewDataset(data, 2, 2, 2, [4][4]float64{}, gtab); !errors.Is(err, ErrGradientMismatch) {
		t.Errorf("Expected ErrGradientMismatch, got %v", err)
	}
}

// TestLogoSplitCounts verifies that every valid held-out index yields N-1
// training directions and exactly one held-out direction.
func TestLogoSplitCounts(t *testing.T) {
	ds := testDataset(t, fourDirectionScheme())
	n := ds.NumDirections()

	for i := 0; i < n; i++ {
		train, heldOut, err := ds.LogoSplit(i, true)
		if err != nil {
			t.Fatalf("LogoSplit(%d, true) failed: %v", i, err)
		}
		if train.NumDirections() != n-1 {
			t.Errorf("Expected %d training directions for index %d, got %d", n-1, i, train.NumDirections())
		}
		if heldOut.Volume == nil || heldOut.Index != i {
			t.Errorf("Expected held-out index %d, got %d", i, heldOut.Index)
		}
		if heldOut.Gradient != ds.Gtab.Gradients[i] {
			t.Errorf("Expected held-out gradient to equal table entry %d", i)
		}
	}
}

// TestLogoSplitWithoutB0 reproduces the reference scenario: four directions
// (one b=0, three diffusion-weighted), holding out DW index 1. The held-out
// partition must be the second diffusion-weighted volume; training keeps
// the b=0 volume and the other two DW volumes.
func TestLogoSplitWithoutB0(t *testing.T) {
	ds := testDataset(t, fourDirectionScheme())

	train, heldOut, err := ds.LogoSplit(1, false)
	if err != nil {
		t.Fatalf("LogoSplit(1, false) failed: %v", err)
	}

	// DW index 1 is global index 2 (the b=0 volume occupies index 0).
	if heldOut.Index != 2 {
		t.Errorf("Expected global held-out index 2, got %d", heldOut.Index)
	}
	if heldOut.Gradient != ds.Gtab.Gradients[2] {
		t.Errorf("Expected held-out gradient to equal original entry 2")
	}
	// That volume was filled with the constant 3.
	if heldOut.Volume.Data[0] != 3 {
		t.Errorf("Expected held-out volume value 3, got %f", heldOut.Volume.Data[0])
	}

	if train.NumDirections() != 3 {
		t.Fatalf("Expected 3 training directions, got %d", train.NumDirections())
	}
	if len(train.Gtab.B0Indices()) != 1 {
		t.Errorf("Expected the b=0 volume to stay in the training set")
	}
	// Training volumes are the constants 1, 2, 4, in order.
	for i, want := range []float64{1, 2, 4} {
		if got := train.VolumeAt(i).Data[0]; got != want {
			t.Errorf("Expected training volume %d value %f, got %f", i, want, got)
		}
	}
}

// TestLogoSplitIndexOutOfRange checks the failure mode for both index
// spaces, before any partitioning happens.
func TestLogoSplitIndexOutOfRange(t *testing.T) {
	ds := testDataset(t, fourDirectionScheme())

	if _, _, err := ds.LogoSplit(3, false); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for DW index 3, got %v", err)
	}
	if _, _, err := ds.LogoSplit(-1, false); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for negative index, got %v", err)
	}
	if _, _, err := ds.LogoSplit(4, true); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Expected ErrIndexOutOfRange for index 4 with b=0, got %v", err)
	}
}

// TestLogoSplitLeavesDatasetUntouched verifies splits copy rather than
// alias the signal array.
func TestLogoSplitLeavesDatasetUntouched(t *testing.T) {
	ds := testDataset(t, fourDirectionScheme())
	original := make([]float64, len(ds.Data))
	copy(original, ds.Data)

	train, heldOut, err := ds.LogoSplit(0, false)
	if err != nil {
		t.Fatalf("LogoSplit failed: %v", err)
	}
	for i := range train.Data {
		train.Data[i] = -1
	}
	for i := range heldOut.Volume.Data {
		heldOut.Volume.Data[i] = -1
	}

	for i, v := range ds.Data {
		if v != original[i] {
			t.Fatalf("Dataset data mutated at %d: %f != %f", i, v, original[i])
		}
	}
}

// TestB0Average verifies the deterministic mean over b=0 volumes and its
// caching.
func TestB0Average(t *testing.T) {
	gradients := []Gradient{
		{B: 0},
		{B: 10}, // also below threshold
		{Dir: [3]float64{1, 0, 0}, B: 1000},
	}
	ds := testDataset(t, gradients)

	avg, err := ds.B0Average()
	if err != nil {
		t.Fatalf("B0Average failed: %v", err)
	}
	// Volumes 0 and 1 hold constants 1 and 2.
	for i, v := range avg.Data {
		if math.Abs(v-1.5) > 1e-12 {
			t.Fatalf("Expected b=0 average 1.5 at %d, got %f", i, v)
		}
	}

	again, err := ds.B0Average()
	if err != nil {
		t.Fatalf("B0Average failed on second call: %v", err)
	}
	if again != avg {
		t.Errorf("Expected the cached b=0 average on repeated calls")
	}
}

// TestB0AverageWithoutB0 ensures datasets with no b=0 volume report it.
func TestB0AverageWithoutB0(t *testing.T) {
	ds := testDataset(t, []Gradient{
		{Dir: [3]float64{1, 0, 0}, B: 1000},
		{Dir: [3]float64{0, 1, 0}, B: 1000},
	})
	if _, err := ds.B0Average(); err == nil {
		t.Errorf("Expected error for dataset without b=0 volumes")
	}
}

// TestVolumeAccessors sanity-checks the row-major indexing helpers.
func TestVolumeAccessors(t *testing.T) {
	v := NewVolume(3, 2, 2)
	v.Set(2, 1, 1, 42)
	if got := v.At(2, 1, 1); got != 42 {
		t.Errorf("Expected 42 at (2,1,1), got %f", got)
	}
	if idx := 1*3*2 + 1*3 + 2; v.Data[idx] != 42 {
		t.Errorf("Expected row-major layout, value not at index %d", idx)
	}
	clone := v.Clone()
	clone.Set(0, 0, 0, 7)
	if v.At(0, 0, 0) == 7 {
		t.Errorf("Expected Clone to copy data, not alias it")
	}
}
