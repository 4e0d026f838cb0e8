package ann

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Artifact layout: the index file carries a fixed header followed by the raw
// float32 vector rows, little-endian. The ids file is a gob-encoded header
// with the id list and model string. The two files are written and loaded as
// a pair; mixing files from different builds is detected by the count check.
const (
	artifactMagic   = 0x57474149 // "WGAI"
	artifactVersion = 1
)

type indexHeader struct {
	Magic   uint32
	Version uint32
	Dim     uint32
	Count   uint32
}

type idsFile struct {
	Model string
	IDs   []string
}

// Save writes the index and its id list to the artifact pair. Files are
// written via a temp-and-rename so a crash mid-write never leaves a torn
// artifact at the target paths.
func Save(f *Flat, indexPath, idsPath string) error {
	if err := writeAtomic(indexPath, func(w io.Writer) error {
		hdr := indexHeader{
			Magic:   artifactMagic,
			Version: artifactVersion,
			Dim:     uint32(f.dim),
			Count:   uint32(len(f.ids)),
		}
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, f.data)
	}); err != nil {
		return fmt.Errorf("ann: save index: %w", err)
	}

	if err := writeAtomic(idsPath, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(idsFile{Model: f.model, IDs: f.ids})
	}); err != nil {
		return fmt.Errorf("ann: save ids: %w", err)
	}
	return nil
}

// Load reads the artifact pair back into a searchable index. A missing file
// surfaces as an error wrapping [os.ErrNotExist], which callers treat as
// "no index built yet" rather than a failure.
func Load(indexPath, idsPath string) (*Flat, error) {
	idsF, err := os.Open(idsPath)
	if err != nil {
		return nil, fmt.Errorf("ann: load ids: %w", err)
	}
	defer idsF.Close()

	var ids idsFile
	if err := gob.NewDecoder(bufio.NewReader(idsF)).Decode(&ids); err != nil {
		return nil, fmt.Errorf("ann: decode ids: %w", err)
	}

	idxF, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("ann: load index: %w", err)
	}
	defer idxF.Close()
	r := bufio.NewReader(idxF)

	var hdr indexHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("ann: read index header: %w", err)
	}
	if hdr.Magic != artifactMagic {
		return nil, fmt.Errorf("ann: bad index magic %#x", hdr.Magic)
	}
	if hdr.Version != artifactVersion {
		return nil, fmt.Errorf("ann: unsupported index version %d", hdr.Version)
	}
	if int(hdr.Count) != len(ids.IDs) {
		return nil, fmt.Errorf("ann: index holds %d vectors but ids file lists %d", hdr.Count, len(ids.IDs))
	}
	if hdr.Dim == 0 || hdr.Count == 0 {
		return nil, fmt.Errorf("ann: empty index artifact")
	}

	data := make([]float32, int(hdr.Count)*int(hdr.Dim))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("ann: read index data: %w", err)
	}

	return &Flat{
		dim:   int(hdr.Dim),
		ids:   ids.IDs,
		data:  data,
		model: ids.Model,
	}, nil
}

// writeAtomic writes to path via a temp file in the same directory plus
// rename.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ann-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
