package codec

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// StrArrayCodec decodes a per-block string-array artifact (reads or
// qualities) into dst[0:n]. lengths[i] is the byte length of entry i.
type StrArrayCodec interface {
	DecodeArray(path string, dst [][]byte, n int, lengths []uint32) error
}

// ZstdStrArray stores the concatenated entries as one zstd frame. The
// entry boundaries are not stored; the caller supplies the lengths.
type ZstdStrArray struct{}

// DecodeArray decompresses path and slices it into dst by lengths.
func (ZstdStrArray) DecodeArray(path string, dst [][]byte, n int, lengths []uint32) error {
	compressed, err := os.ReadFile(path) //nolint:gosec // artifact paths come from the pipeline
	if err != nil {
		return fmt.Errorf("opening string array %s: %w", path, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompressing string array %s: %w", path, err)
	}

	off := 0
	for i := range n {
		l := int(lengths[i])
		if off+l > len(raw) {
			return fmt.Errorf("string array %s: truncated at entry %d", path, i)
		}
		dst[i] = raw[off : off+l : off+l]
		off += l
	}
	if off != len(raw) {
		return fmt.Errorf("string array %s: %d trailing bytes", path, len(raw)-off)
	}
	return nil
}

// EncodeArray writes entries as a single concatenated zstd frame.
func (ZstdStrArray) EncodeArray(path string, entries [][]byte) error {
	var total int
	for _, e := range entries {
		total += len(e)
	}
	raw := make([]byte, 0, total)
	for _, e := range entries {
		raw = append(raw, e...)
	}
	return Zstd{}.Encode(path, raw)
}
