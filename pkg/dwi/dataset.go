// Package dwi provides the in-memory representation of a diffusion-weighted
// MRI dataset: the 4D signal array, its voxel-to-world affine, and the
// gradient table describing each volume's diffusion encoding. It implements
// the leave-one-gradient-out split used to hold a single direction out for
// model validation and motion estimation.
package dwi

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned by LogoSplit when the held-out index
	// does not address an available direction.
	ErrIndexOutOfRange = errors.New("dwi: held-out index out of range")

	// ErrGradientMismatch is returned when the gradient table length does
	// not match the number of volumes on the 4th data axis.
	ErrGradientMismatch = errors.New("dwi: gradient table length does not match direction axis")
)

// Volume is a single 3D image. Data is stored as a 1D array in row-major
// order: index = z*Width*Height + y*Width + x.
type Volume struct {
	// Data is the voxel intensities.
	Data []float64

	// Width, Height, Depth are the volume dimensions in voxels.
	Width, Height, Depth int
}

// NewVolume allocates a zero-filled volume with the given dimensions.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// At returns the intensity at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// Set stores an intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[z*v.Width*v.Height+y*v.Width+x] = value
}

// NumVoxels returns the number of voxels in the volume.
func (v *Volume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := NewVolume(v.Width, v.Height, v.Depth)
	copy(out.Data, v.Data)
	return out
}

// Dataset holds a complete DWI acquisition: the 4D signal array
// (spatial x spatial x spatial x directions), the voxel-to-world affine,
// and the gradient table. The signal is stored direction-major: volume i
// occupies Data[i*stride : (i+1)*stride] with stride = Width*Height*Depth,
// each volume in Volume's row-major layout.
//
// A Dataset is immutable once constructed except for the lazily computed
// b=0 average; splits copy data rather than aliasing it.
type Dataset struct {
	// Data is the 4D signal array, direction-major.
	Data []float64

	// Width, Height, Depth are the spatial dimensions in voxels.
	Width, Height, Depth int

	// Affine maps voxel indices to world (scanner) coordinates.
	Affine [4][4]float64

	// Gtab describes the diffusion encoding of each volume.
	Gtab *GradientTable

	// b0 caches the average of all b=0 volumes once computed.
	b0 *Volume
}

// HeldOut is the left-out portion of a leave-one-gradient-out split: the
// single excluded volume and its gradient table entry.
type HeldOut struct {
	// Volume is the excluded direction's 3D image.
	Volume *Volume

	// Gradient is the excluded direction's table entry.
	Gradient Gradient

	// Index is the excluded direction's position in the original dataset.
	Index int
}

// NewDataset constructs a dataset from a direction-major 4D array and its
// gradient table. The table must have exactly one entry per volume.
func NewDataset(data []float64, width, height, depth int, affine [4][4]float64, gtab *GradientTable) (*Dataset, error) {
	stride := width * height * depth
	if stride <= 0 {
		return nil, fmt.Errorf("dwi: invalid dimensions %dx%dx%d", width, height, depth)
	}
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("dwi: data length %d is not a multiple of volume size %d", len(data), stride)
	}
	if gtab == nil || gtab.Len() != len(data)/stride {
		return nil, fmt.Errorf("%w: %d entries for %d volumes", ErrGradientMismatch, gtab.Len(), len(data)/stride)
	}
	return &Dataset{
		Data:   data,
		Width:  width,
		Height: height,
		Depth:  depth,
		Affine: affine,
		Gtab:   gtab,
	}, nil
}

// NumDirections returns the size of the 4th data axis.
func (d *Dataset) NumDirections() int {
	return d.Gtab.Len()
}

// stride returns the number of voxels per volume.
func (d *Dataset) stride() int {
	return d.Width * d.Height * d.Depth
}

// VolumeAt returns a copy of the i-th volume on the direction axis.
func (d *Dataset) VolumeAt(i int) *Volume {
	v := NewVolume(d.Width, d.Height, d.Depth)
	copy(v.Data, d.Data[i*d.stride():(i+1)*d.stride()])
	return v
}

// B0Average returns the voxel-wise mean of all b=0 volumes. The result is
// computed on first use and cached; the underlying data is never modified.
// Datasets with no b=0 volume return an error.
func (d *Dataset) B0Average() (*Volume, error) {
	if d.b0 != nil {
		return d.b0, nil
	}
	indices := d.Gtab.B0Indices()
	if len(indices) == 0 {
		return nil, fmt.Errorf("dwi: dataset has no b=0 volumes below threshold %g", d.Gtab.B0Threshold)
	}
	avg := NewVolume(d.Width, d.Height, d.Depth)
	stride := d.stride()
	for _, idx := range indices {
		vol := d.Data[idx*stride : (idx+1)*stride]
		for i, s := range vol {
			avg.Data[i] += s
		}
	}
	n := float64(len(indices))
	for i := range avg.Data {
		avg.Data[i] /= n
	}
	d.b0 = avg
	return d.b0, nil
}

// LogoSplit partitions the dataset for leave-one-gradient-out validation.
//
// With withB0 false, heldOutIndex addresses the diffusion-weighted
// directions only (0 being the first non-b=0 volume); the training set
// keeps every b=0 volume plus the remaining diffusion-weighted volumes.
// With withB0 true, heldOutIndex addresses all directions and the training
// set is everything else.
//
// The returned training dataset owns copies of the selected volumes; the
// receiver is left untouched.
func (d *Dataset) LogoSplit(heldOutIndex int, withB0 bool) (*Dataset, *HeldOut, error) {
	candidates := d.allIndices()
	if !withB0 {
		candidates = d.Gtab.DWIndices()
	}
	if heldOutIndex < 0 || heldOutIndex >= len(candidates) {
		return nil, nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, heldOutIndex, len(candidates))
	}
	excluded := candidates[heldOutIndex]

	var trainIdx []int
	for i := 0; i < d.NumDirections(); i++ {
		if i != excluded {
			trainIdx = append(trainIdx, i)
		}
	}

	stride := d.stride()
	trainData := make([]float64, 0, len(trainIdx)*stride)
	for _, idx := range trainIdx {
		trainData = append(trainData, d.Data[idx*stride:(idx+1)*stride]...)
	}
	train, err := NewDataset(trainData, d.Width, d.Height, d.Depth, d.Affine, d.Gtab.Subset(trainIdx))
	if err != nil {
		return nil, nil, err
	}

	heldOut := &HeldOut{
		Volume:   d.VolumeAt(excluded),
		Gradient: d.Gtab.Gradients[excluded],
		Index:    excluded,
	}
	return train, heldOut, nil
}

func (d *Dataset) allIndices() []int {
	idx := make([]int, d.NumDirections())
	for i := range idx {
		idx[i] = i
	}
	return idx
}
