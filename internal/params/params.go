// Package params defines the archive parameter block written by the
// compressor and consumed by the decompressor.
package params

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// FileName is the parameter block file inside the archive temp directory.
const FileName = "cp.bin"

// Magic bytes identifying the parameter block.
var Magic = [4]byte{'U', 'S', 'P', 'R'}

// CurrentVersion is the parameter block format version.
const CurrentVersion uint8 = 1

// Flag bits in the parameter block flags byte.
const (
	flagPairedEnd       uint8 = 1 << 0
	flagPreserveID      uint8 = 1 << 1
	flagPreserveQuality uint8 = 1 << 2
	flagPreserveOrder   uint8 = 1 << 3
	flagLongMode        uint8 = 1 << 4
	flagPairedIDMatch   uint8 = 1 << 5
)

const bodySize = 4 + 1 + 4*4 + 1 + 1

// Params holds the read-only compression parameters of an archive.
type Params struct {
	NumReads             uint32 // total reads (pairs count double)
	NumReadsPerBlock     uint32 // block size, short-read mode
	NumReadsPerBlockLong uint32 // block size, long-read mode
	NumThrEncode         uint32 // number of reference shards
	PairedEnd            bool
	PreserveID           bool
	PreserveQuality      bool
	PreserveOrder        bool
	LongMode             bool
	PairedIDMatch        bool
	PairedIDCode         uint8 // opaque, interpreted by the id codec only
}

// Write serializes the parameter block, terminated by a blake2b-256 digest
// of the preceding bytes.
func (p *Params) Write(w io.Writer) error {
	buf := make([]byte, bodySize)
	copy(buf[0:4], Magic[:])
	buf[4] = CurrentVersion
	binary.LittleEndian.PutUint32(buf[5:9], p.NumReads)
	binary.LittleEndian.PutUint32(buf[9:13], p.NumReadsPerBlock)
	binary.LittleEndian.PutUint32(buf[13:17], p.NumReadsPerBlockLong)
	binary.LittleEndian.PutUint32(buf[17:21], p.NumThrEncode)
	buf[21] = p.flags()
	buf[22] = p.PairedIDCode

	digest := blake2b.Sum256(buf)
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := w.Write(digest[:])
	return err
}

func (p *Params) flags() uint8 {
	var f uint8
	if p.PairedEnd {
		f |= flagPairedEnd
	}
	if p.PreserveID {
		f |= flagPreserveID
	}
	if p.PreserveQuality {
		f |= flagPreserveQuality
	}
	if p.PreserveOrder {
		f |= flagPreserveOrder
	}
	if p.LongMode {
		f |= flagLongMode
	}
	if p.PairedIDMatch {
		f |= flagPairedIDMatch
	}
	return f
}

// Read deserializes and validates a parameter block.
func Read(r io.Reader) (*Params, error) {
	buf := make([]byte, bodySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if [4]byte(buf[0:4]) != Magic {
		return nil, errors.New("invalid magic bytes: not a parameter block")
	}
	if buf[4] != CurrentVersion {
		return nil, fmt.Errorf("unsupported parameter block version %d", buf[4])
	}

	var digest [blake2b.Size256]byte
	if _, err := io.ReadFull(r, digest[:]); err != nil {
		return nil, err
	}
	if blake2b.Sum256(buf) != digest {
		return nil, errors.New("parameter block digest mismatch")
	}

	flags := buf[21]
	return &Params{
		NumReads:             binary.LittleEndian.Uint32(buf[5:9]),
		NumReadsPerBlock:     binary.LittleEndian.Uint32(buf[9:13]),
		NumReadsPerBlockLong: binary.LittleEndian.Uint32(buf[13:17]),
		NumThrEncode:         binary.LittleEndian.Uint32(buf[17:21]),
		PairedEnd:            flags&flagPairedEnd != 0,
		PreserveID:           flags&flagPreserveID != 0,
		PreserveQuality:      flags&flagPreserveQuality != 0,
		PreserveOrder:        flags&flagPreserveOrder != 0,
		LongMode:             flags&flagLongMode != 0,
		PairedIDMatch:        flags&flagPairedIDMatch != 0,
		PairedIDCode:         buf[22],
	}, nil
}

// Load reads the parameter block from its well-known file in dir.
func Load(dir string) (*Params, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("opening parameter block: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	p, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading parameter block: %w", err)
	}
	return p, nil
}

// Save writes the parameter block to its well-known file in dir.
func (p *Params) Save(dir string) error {
	f, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("creating parameter block: %w", err)
	}
	if err := p.Write(f); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("writing parameter block: %w", err)
	}
	return f.Close()
}
