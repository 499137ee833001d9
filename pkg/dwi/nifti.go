package dwi

import (
	"fmt"

	"github.com/nipreps/dmotion/pkg/nifti"
)

// FromNIfTI builds a dataset from a 4D NIfTI-1 image and a gradient table
// loaded separately. The NIfTI voxel ordering (x fastest, 4th dimension
// slowest) matches the dataset's direction-major layout, so the data is
// adopted without reshuffling.
func FromNIfTI(img *nifti.Image, gtab *GradientTable) (*Dataset, error) {
	if img.NDim != 4 {
		return nil, fmt.Errorf("dwi: expected a 4D image, got %dD", img.NDim)
	}
	return NewDataset(img.Data, img.Nx, img.Ny, img.Nz, img.Affine, gtab)
}

// LoadNIfTI reads a 4D NIfTI-1 file plus a 4-column gradient text file and
// combines them into a dataset.
func LoadNIfTI(niftiPath, gradientPath string) (*Dataset, error) {
	img, err := nifti.ReadFile(niftiPath)
	if err != nil {
		return nil, err
	}
	gtab, err := LoadGradientTable(gradientPath)
	if err != nil {
		return nil, err
	}
	return FromNIfTI(img, gtab)
}
