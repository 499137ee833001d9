// Package nifti reads NIfTI-1 files, the de facto interchange format for
// MRI volumes. Only single-file images (magic "n+1") are supported, in
// either byte order, for the voxel datatypes that occur in diffusion
// acquisitions.
//
// The header layout follows the official definition at
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Voxel datatype codes from the NIfTI-1 standard.
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

const (
	minHeaderSize = 348
	dataOffset    = 352
)

// Header is the on-disk NIfTI-1 header, a fixed 348-byte C struct.
//
// Type translation from the C header: int -> int32, float -> float32,
// short -> int16, char -> int8.
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b param
	QuaternC float32 // Quaternion c param
	QuaternD float32 // Quaternion d param
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // Must be "n+1\0"
}

// Image is a decoded NIfTI-1 image: dimensions, voxel-to-world affine, and
// voxel data converted to float64 with scl_slope/scl_inter applied.
type Image struct {
	// NDim is the number of meaningful dimensions (1..7).
	NDim int

	// Nx, Ny, Nz are the spatial dimensions; Nt the 4th (direction/time)
	// dimension, 1 for 3D images.
	Nx, Ny, Nz, Nt int

	// PixDim holds the grid spacings; PixDim[1..4] correspond to x, y, z, t.
	PixDim [8]float64

	// Affine is the voxel-to-world transform, from the sform when present
	// and a pixdim-scaled identity otherwise.
	Affine [4][4]float64

	// Data holds the voxel intensities in NIfTI order: x fastest, then y,
	// z, and the 4th dimension slowest.
	Data []float64

	// ByteOrder is the byte order the file was stored in.
	ByteOrder binary.ByteOrder
}

// ReadHeader parses a header from raw bytes, inferring the byte order from
// the valid range of dim[0].
func ReadHeader(b []byte) (Header, binary.ByteOrder, error) {
	if len(b) < minHeaderSize {
		return Header{}, nil, fmt.Errorf("nifti: header truncated: %d bytes", len(b))
	}

	var h Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(b), order, &h); err != nil {
		return Header{}, nil, fmt.Errorf("nifti: failed to parse header: %w", err)
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		h = Header{}
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(b), order, &h); err != nil {
			return Header{}, nil, fmt.Errorf("nifti: failed to parse header: %w", err)
		}
	}
	if h.Dim[0] <= 0 || h.Dim[0] > 7 {
		return Header{}, nil, fmt.Errorf("nifti: cannot infer byte order: dim[0] not in [1, 7]")
	}
	if err := validateHeader(h); err != nil {
		return Header{}, nil, err
	}

	log.WithFields(log.Fields{
		"byteOrder": fmt.Sprintf("%v", order),
		"dim":       h.Dim,
		"datatype":  h.DataType,
	}).Debug("Parsed NIfTI-1 header")
	return h, order, nil
}

func validateHeader(h Header) error {
	switch {
	case h.SizeOfHdr != minHeaderSize:
		return fmt.Errorf("nifti: invalid header size %d, want %d", h.SizeOfHdr, minHeaderSize)
	case h.Magic != [4]int8{'n', '+', '1', 0}:
		return fmt.Errorf("nifti: invalid magic: header and data must share one file")
	case bytesPerVoxel(h.DataType) == 0:
		return fmt.Errorf("nifti: unsupported datatype code %d", h.DataType)
	}
	return nil
}

func bytesPerVoxel(datatype int16) int {
	switch datatype {
	case DTUint8:
		return 1
	case DTInt16:
		return 2
	case DTInt32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	}
	return 0
}

// ReadFile reads and decodes a NIfTI-1 image from a .nii or .nii.gz file.
func ReadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("nifti: failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("nifti: failed to read %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses a complete single-file NIfTI-1 image from raw bytes.
func Decode(raw []byte) (*Image, error) {
	h, order, err := ReadHeader(raw)
	if err != nil {
		return nil, err
	}

	img := &Image{
		NDim:      int(h.Dim[0]),
		Nx:        max(1, int(h.Dim[1])),
		Ny:        max(1, int(h.Dim[2])),
		Nz:        max(1, int(h.Dim[3])),
		Nt:        max(1, int(h.Dim[4])),
		ByteOrder: order,
	}
	for i := range img.PixDim {
		img.PixDim[i] = float64(h.PixDim[i])
	}
	img.Affine = affineFromHeader(h)

	offset := int(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	nvox := img.Nx * img.Ny * img.Nz * img.Nt
	nbyper := bytesPerVoxel(h.DataType)
	if len(raw) < offset+nvox*nbyper {
		return nil, fmt.Errorf("nifti: file truncated: need %d data bytes, have %d", nvox*nbyper, len(raw)-offset)
	}

	img.Data, err = decodeVoxels(raw[offset:offset+nvox*nbyper], h.DataType, order, nvox)
	if err != nil {
		return nil, err
	}

	// scl_slope == 0 means no scaling per the standard.
	if h.SclSlope != 0 && (h.SclSlope != 1 || h.SclInter != 0) {
		slope := float64(h.SclSlope)
		inter := float64(h.SclInter)
		for i := range img.Data {
			img.Data[i] = slope*img.Data[i] + inter
		}
	}
	return img, nil
}

func decodeVoxels(b []byte, datatype int16, order binary.ByteOrder, nvox int) ([]float64, error) {
	data := make([]float64, nvox)
	switch datatype {
	case DTUint8:
		for i := 0; i < nvox; i++ {
			data[i] = float64(b[i])
		}
	case DTInt16:
		for i := 0; i < nvox; i++ {
			data[i] = float64(int16(order.Uint16(b[2*i:])))
		}
	case DTInt32:
		for i := 0; i < nvox; i++ {
			data[i] = float64(int32(order.Uint32(b[4*i:])))
		}
	case DTFloat32:
		for i := 0; i < nvox; i++ {
			data[i] = float64(math.Float32frombits(order.Uint32(b[4*i:])))
		}
	case DTFloat64:
		for i := 0; i < nvox; i++ {
			data[i] = math.Float64frombits(order.Uint64(b[8*i:]))
		}
	default:
		return nil, fmt.Errorf("nifti: unsupported datatype code %d", datatype)
	}
	return data, nil
}

// affineFromHeader prefers the sform rows; with no sform it falls back to a
// diagonal built from the grid spacings.
func affineFromHeader(h Header) [4][4]float64 {
	var a [4][4]float64
	if h.SFormCode > 0 {
		for j := 0; j < 4; j++ {
			a[0][j] = float64(h.SRowX[j])
			a[1][j] = float64(h.SRowY[j])
			a[2][j] = float64(h.SRowZ[j])
		}
		a[3][3] = 1
		return a
	}
	a[0][0] = float64(h.PixDim[1])
	a[1][1] = float64(h.PixDim[2])
	a[2][2] = float64(h.PixDim[3])
	a[3][3] = 1
	return a
}
