package dwi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Container file layout, little-endian:
//
//	magic   [4]byte "DWI1"
//	dims    4 x uint32 (width, height, depth, directions)
//	affine  16 x float64, row-major
//	b0thr   float64
//	table   directions x 4 float64 (dir x, y, z, b-value)
//	data    width*height*depth*directions x float64, direction-major
var containerMagic = [4]byte{'D', 'W', 'I', '1'}

// Save writes the dataset to a single-file binary container.
func (d *Dataset) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, containerMagic); err != nil {
		return fmt.Errorf("failed to write magic: %w", err)
	}
	dims := [4]uint32{uint32(d.Width), uint32(d.Height), uint32(d.Depth), uint32(d.NumDirections())}
	if err := binary.Write(w, binary.LittleEndian, dims); err != nil {
		return fmt.Errorf("failed to write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, d.Affine); err != nil {
		return fmt.Errorf("failed to write affine: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, d.Gtab.B0Threshold); err != nil {
		return fmt.Errorf("failed to write b=0 threshold: %w", err)
	}
	for _, g := range d.Gtab.Gradients {
		row := [4]float64{g.Dir[0], g.Dir[1], g.Dir[2], g.B}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("failed to write gradient table: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, d.Data); err != nil {
		return fmt.Errorf("failed to write signal data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush dataset file: %w", err)
	}

	log.WithFields(log.Fields{
		"path":       path,
		"dimensions": fmt.Sprintf("%dx%dx%dx%d", d.Width, d.Height, d.Depth, d.NumDirections()),
	}).Debug("Saved dataset container")
	return nil
}

// Load reads a dataset from a single-file binary container written by Save.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if magic != containerMagic {
		return nil, fmt.Errorf("%s is not a DWI container file", path)
	}
	var dims [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("failed to read dimensions: %w", err)
	}
	var affine [4][4]float64
	if err := binary.Read(r, binary.LittleEndian, &affine); err != nil {
		return nil, fmt.Errorf("failed to read affine: %w", err)
	}
	var b0thr float64
	if err := binary.Read(r, binary.LittleEndian, &b0thr); err != nil {
		return nil, fmt.Errorf("failed to read b=0 threshold: %w", err)
	}
	n := int(dims[3])
	gradients := make([]Gradient, n)
	for i := 0; i < n; i++ {
		var row [4]float64
		if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
			return nil, fmt.Errorf("failed to read gradient table: %w", err)
		}
		gradients[i] = Gradient{Dir: [3]float64{row[0], row[1], row[2]}, B: row[3]}
	}
	gtab := NewGradientTable(gradients)
	gtab.B0Threshold = b0thr

	data := make([]float64, int(dims[0])*int(dims[1])*int(dims[2])*n)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("failed to read signal data: %w", err)
	}

	log.WithFields(log.Fields{
		"path":       path,
		"dimensions": fmt.Sprintf("%dx%dx%dx%d", dims[0], dims[1], dims[2], dims[3]),
	}).Debug("Loaded dataset container")

	return NewDataset(data, int(dims[0]), int(dims[1]), int(dims[2]), affine, gtab)
}
