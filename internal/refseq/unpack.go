// Package refseq rebuilds the shared reference sequence from its 2-bit
// packed shards.
package refseq

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/springlab/unspring/internal/codec"
	"github.com/springlab/unspring/internal/store"
)

// Prefix is the reference shard file name prefix inside the temp directory.
const Prefix = "read_seq.bin"

var bases = [4]byte{'A', 'C', 'G', 'T'}

// Unpacker materializes reference shards and concatenates them into the
// in-memory reference sequence.
type Unpacker struct {
	Store   *store.Store
	Shards  int // number of encode-time shards
	Workers int
	Deep    codec.DeepCodec // non-nil selects neural shard payloads
	GPUID   int
}

// Unpack decodes all shards in parallel and returns the concatenated
// reference. Shard files are consumed.
func (u *Unpacker) Unpack() ([]byte, error) {
	dir := u.Store.Dir()
	workers := u.Workers
	if workers < 1 {
		workers = 1
	}

	log.WithFields(log.Fields{"shards": u.Shards, "workers": workers}).
		Debug("unpacking reference shards")

	var g errgroup.Group
	for tid := range workers {
		g.Go(func() error {
			// Each worker owns a contiguous shard range.
			for k := tid * u.Shards / workers; k < (tid+1)*u.Shards/workers; k++ {
				if err := u.unpackShard(k, tid); err != nil {
					return fmt.Errorf("unpacking shard %d: %w", k, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var seq []byte
	for k := range u.Shards {
		shard := filepath.Join(dir, Prefix+"."+strconv.Itoa(k))
		data, err := os.ReadFile(shard) //nolint:gosec // shard paths are store-derived
		if err != nil {
			return nil, fmt.Errorf("reading shard %d: %w", k, err)
		}
		seq = append(seq, data...)
		if err := os.Remove(shard); err != nil {
			return nil, fmt.Errorf("removing shard %d: %w", k, err)
		}
	}

	log.WithField("length", len(seq)).Debug("reference assembled")
	return seq, nil
}

// unpackShard expands shard k's packed payload into ASCII bases, appends
// the plaintext tail, and leaves the result at the shard path.
func (u *Unpacker) unpackShard(k, worker int) error {
	dir := u.Store.Dir()
	shard := filepath.Join(dir, Prefix+"."+strconv.Itoa(k))

	var packedPath string
	if u.Deep != nil {
		combined := shard + ".tmp.compressed.combined"
		if err := u.Deep.Decode(combined, shard, u.GPUID); err != nil {
			return err
		}
		if err := os.Remove(combined); err != nil {
			return fmt.Errorf("removing deep payload: %w", err)
		}
		packedPath = shard
	} else {
		scratch, err := u.Store.Scratch(worker)
		if err != nil {
			return err
		}
		base := Prefix + "." + strconv.Itoa(k)
		packedPath, err = u.Store.Materialize(shard+".zpaq", scratch, base+".tmp", base)
		if err != nil {
			return err
		}
	}

	packed, err := os.ReadFile(packedPath) //nolint:gosec // path produced above
	if err != nil {
		return err
	}

	// Each payload byte packs 4 bases, least significant bits first.
	ascii := make([]byte, 0, len(packed)*4)
	for _, b := range packed {
		ascii = append(ascii,
			bases[b&0x03],
			bases[(b>>2)&0x03],
			bases[(b>>4)&0x03],
			bases[(b>>6)&0x03],
		)
	}

	tailPath := shard + ".tail"
	tail, err := os.ReadFile(tailPath) //nolint:gosec // shard paths are store-derived
	if err != nil {
		return fmt.Errorf("reading shard tail: %w", err)
	}
	ascii = append(ascii, tail...)

	tmp := shard + ".tmp"
	if err := os.WriteFile(tmp, ascii, 0o600); err != nil {
		return err
	}
	if packedPath != shard {
		if err := os.Remove(packedPath); err != nil {
			return fmt.Errorf("removing packed payload: %w", err)
		}
	}
	if err := os.Remove(tailPath); err != nil {
		return fmt.Errorf("removing shard tail: %w", err)
	}
	return os.Rename(tmp, shard)
}
