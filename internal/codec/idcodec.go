package codec

import (
	"bytes"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// IDCodec decodes per-block read identifier artifacts and derives mate-2
// identifiers from mate-1 identifiers when the archive recorded a pairing
// convention. The pairing code byte is opaque to everything outside this
// interface.
type IDCodec interface {
	DecodeBlock(path string, dst [][]byte, n int) error
	ModifyID(id []byte, code uint8) []byte
}

// Pairing codes understood by the bundled id codec.
const (
	IDPairIdentical   uint8 = 0 // mate ids are byte-identical
	IDPairLastChar    uint8 = 1 // last byte is the mate number
	IDPairSlashSuffix uint8 = 2 // "/1" suffix becomes "/2"
	IDPairSecondToken uint8 = 3 // byte after the first space is the mate number
)

// ZstdID stores a block of id lines, newline separated, as one zstd frame.
// Id lines keep their leading '@'.
type ZstdID struct{}

// DecodeBlock decompresses path and splits it into n id lines.
func (ZstdID) DecodeBlock(path string, dst [][]byte, n int) error {
	compressed, err := os.ReadFile(path) //nolint:gosec // artifact paths come from the pipeline
	if err != nil {
		return fmt.Errorf("opening id block %s: %w", path, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompressing id block %s: %w", path, err)
	}

	off := 0
	for i := range n {
		nl := bytes.IndexByte(raw[off:], '\n')
		if nl < 0 {
			return fmt.Errorf("id block %s: truncated at entry %d", path, i)
		}
		dst[i] = raw[off : off+nl : off+nl]
		off += nl + 1
	}
	return nil
}

// EncodeBlock writes ids as a newline-separated zstd frame.
func (ZstdID) EncodeBlock(path string, ids [][]byte) error {
	var raw []byte
	for _, id := range ids {
		raw = append(raw, id...)
		raw = append(raw, '\n')
	}
	return Zstd{}.Encode(path, raw)
}

// ModifyID rewrites a mate-1 id into the mate-2 id per the pairing code.
// Unknown codes leave the id untouched.
func (ZstdID) ModifyID(id []byte, code uint8) []byte {
	switch code {
	case IDPairIdentical:
		return id
	case IDPairLastChar:
		if len(id) > 0 {
			id[len(id)-1] = '2'
		}
		return id
	case IDPairSlashSuffix:
		if bytes.HasSuffix(id, []byte("/1")) {
			id[len(id)-1] = '2'
		}
		return id
	case IDPairSecondToken:
		sp := bytes.IndexByte(id, ' ')
		if sp >= 0 && sp+1 < len(id) && id[sp+1] == '1' {
			id[sp+1] = '2'
		}
		return id
	default:
		return id
	}
}
