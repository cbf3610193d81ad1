// Package pipeline drives block-parallel decompression of an archive temp
// directory into ordered FASTQ output.
package pipeline

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/springlab/unspring/internal/codec"
	"github.com/springlab/unspring/internal/params"
)

// Config is the per-decode configuration.
type Config struct {
	TempDir    string
	Out1       string
	Out2       string // ignored for single-end archives
	NumThreads int
	Start      uint64 // first record to emit (pairs for paired-end)
	End        uint64 // one past the last record; 0 means all
	Gzip       bool
	GzipLevel  int
	Deep       bool
	GPUID      int
}

// Codecs binds the external collaborators.
type Codecs struct {
	Gen      codec.GenCodec
	StrArray codec.StrArrayCodec
	ID       codec.IDCodec
	Deep     codec.DeepCodec
}

// DefaultCodecs returns the bundled in-process implementations. Deep is
// left unset; callers running deep-mode archives must supply one.
func DefaultCodecs() Codecs {
	return Codecs{
		Gen:      codec.Zstd{},
		StrArray: codec.ZstdStrArray{},
		ID:       codec.ZstdID{},
	}
}

// Decompress reconstructs the archived reads into the configured output
// files, honoring the [Start, End) record range.
func Decompress(cp *params.Params, cfg Config, cs Codecs) error {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = runtime.NumCPU()
	}

	total := totalRecords(cp)
	if cfg.End == 0 || cfg.End > total {
		cfg.End = total
	}
	if cfg.Start > cfg.End {
		return fmt.Errorf("invalid range [%d, %d)", cfg.Start, cfg.End)
	}

	if cp.LongMode {
		return decompressLong(cp, cfg, cs)
	}
	return decompressShort(cp, cfg, cs)
}

// totalRecords is the record count the range addresses: pairs for
// paired-end archives, reads otherwise.
func totalRecords(cp *params.Params) uint64 {
	if cp.PairedEnd {
		return uint64(cp.NumReads) / 2
	}
	return uint64(cp.NumReads)
}

// fakeID synthesizes an identifier for archives that did not preserve
// them: "@<record number>/<mate>".
func fakeID(recordNum uint64, mate int) []byte {
	id := make([]byte, 0, 24)
	id = append(id, '@')
	id = strconv.AppendUint(id, recordNum, 10)
	id = append(id, '/')
	return strconv.AppendInt(id, int64(mate), 10)
}

func blockSuffix(blockNum uint64) string {
	return strconv.FormatUint(blockNum, 10)
}
