package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/springlab/unspring/internal/codec"
	"github.com/springlab/unspring/internal/fastq"
	"github.com/springlab/unspring/internal/params"
	"github.com/springlab/unspring/internal/reconstruct"
	"github.com/springlab/unspring/internal/refseq"
	"github.com/springlab/unspring/internal/store"
)

// Per-block artifact kinds of the short-read layout. Archives expand to
// either the short name or the full name, codec-dependent.
var shortKinds = []struct{ base, short string }{
	{"read_flag.txt", "e"},
	{"read_pos.bin", "a"},
	{"read_noise.txt", "b"},
	{"read_noisepos.bin", "c"},
	{"read_rev.txt", "d"},
	{"read_unaligned.txt", "f"},
	{"read_lengths.bin", "g"},
}

var pairKinds = []struct{ base, short string }{
	{"read_pos_pair.bin", "read_pos_pair.bin"},
	{"read_rev_pair.txt", "read_rev_pair.txt"},
}

type shortDecoder struct {
	cp  *params.Params
	cfg Config
	cs  Codecs
	st  *store.Store
	seq []byte

	reads1, reads2 [][]byte
	ids, quals     [][]byte
	lens1, lens2   []uint32

	readsDone uint64
}

func decompressShort(cp *params.Params, cfg Config, cs Codecs) error {
	st := store.New(cfg.TempDir, cs.Gen)

	var deep codec.DeepCodec
	if cfg.Deep {
		deep = cs.Deep
		if deep == nil {
			return fmt.Errorf("deep mode requested but no deep codec configured")
		}
	}
	unpacker := &refseq.Unpacker{
		Store:   st,
		Shards:  int(cp.NumThrEncode),
		Workers: cfg.NumThreads,
		Deep:    deep,
		GPUID:   cfg.GPUID,
	}
	seq, err := unpacker.Unpack()
	if err != nil {
		return fmt.Errorf("unpacking reference: %w", err)
	}

	blockSize := uint64(cp.NumReadsPerBlock)
	total := totalRecords(cp)
	perStep := min(uint64(cfg.NumThreads)*blockSize, total)

	d := &shortDecoder{
		cp:     cp,
		cfg:    cfg,
		cs:     cs,
		st:     st,
		seq:    seq,
		reads1: make([][]byte, perStep),
		ids:    make([][]byte, perStep),
		lens1:  make([]uint32, perStep),
	}
	if cp.PairedEnd {
		d.reads2 = make([][]byte, perStep)
		d.lens2 = make([]uint32, perStep)
	}
	if cp.PreserveQuality {
		d.quals = make([][]byte, perStep)
	}

	out1, err := fastq.NewWriter(cfg.Out1, cfg.Gzip, cfg.GzipLevel)
	if err != nil {
		return err
	}
	var out2 *fastq.Writer
	if cp.PairedEnd {
		out2, err = fastq.NewWriter(cfg.Out2, cfg.Gzip, cfg.GzipLevel)
		if err != nil {
			out1.Close() //nolint:errcheck,gosec // open error takes precedence
			return err
		}
	}

	err = d.run(out1, out2, blockSize, total)
	if cerr := out1.Close(); err == nil {
		err = cerr
	}
	if out2 != nil {
		if cerr := out2.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (d *shortDecoder) run(out1, out2 *fastq.Writer, blockSize, total uint64) error {
	firstBlock := d.cfg.Start / blockSize
	blocksDone := firstBlock
	d.readsDone = blocksDone * blockSize
	workers := uint64(d.cfg.NumThreads)
	perStep := uint64(len(d.reads1))

	done := false
	for !done {
		cur := perStep
		if d.readsDone+cur >= total {
			cur = total - d.readsDone
		}
		if cur == 0 {
			break
		}
		log.WithFields(log.Fields{"blocks_done": blocksDone, "records": cur}).
			Debug("decoding step")

		for j := range 2 {
			if j == 1 && !d.cp.PairedEnd {
				continue
			}

			var g errgroup.Group
			for tid := range int(workers) {
				g.Go(func() error {
					base := uint64(tid) * blockSize
					if base >= cur {
						return nil
					}
					n := min(cur, uint64(tid+1)*blockSize) - base
					blockNum := blocksDone + uint64(tid)

					if j == 0 {
						// Both mates are reconstructed on the first pass.
						if err := d.reconstructBlock(blockNum, tid, int(base), int(n)); err != nil {
							return fmt.Errorf("block %d: %w", blockNum, err)
						}
					}
					return d.decodeIDsAndQualities(j, blockNum, int(base), int(n))
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			reads := d.reads1
			if j == 1 {
				reads = d.reads2
			}
			out := out1
			if j == 1 {
				out = out2
			}

			outCount := cur
			if d.readsDone+outCount >= d.cfg.End {
				outCount = d.cfg.End - d.readsDone
				done = true
			}
			if blocksDone == firstBlock {
				shift := d.cfg.Start % blockSize
				err := out.WriteBlock(d.ids[shift:], reads[shift:], sliceFrom(d.quals, shift),
					int(outCount-shift), d.cp.PreserveQuality)
				if err != nil {
					return err
				}
			} else {
				if err := out.WriteBlock(d.ids, reads, d.quals, int(outCount), d.cp.PreserveQuality); err != nil {
					return err
				}
			}
		}

		d.readsDone += cur
		blocksDone += workers
	}
	return nil
}

// reconstructBlock expands the block's stream artifacts and runs the
// per-read reconstruction into the shared arrays at [base, base+n).
func (d *shortDecoder) reconstructBlock(blockNum uint64, tid, base, n int) error {
	scratch, err := d.st.Scratch(tid)
	if err != nil {
		return err
	}

	kinds := shortKinds
	if d.cp.PairedEnd {
		kinds = append(append([]struct{ base, short string }{}, shortKinds...), pairKinds...)
	}

	suffix := blockSuffix(blockNum)
	paths := make([]string, len(kinds))
	for i, k := range kinds {
		archive := filepath.Join(d.st.Dir(), k.base+"."+suffix+".zpaq")
		paths[i], err = d.st.Materialize(archive, scratch, k.short+"."+suffix, k.base+"."+suffix)
		if err != nil {
			return err
		}
	}

	files := make([]*os.File, len(paths))
	for i, p := range paths {
		files[i], err = os.Open(p) //nolint:gosec // store-derived paths
		if err != nil {
			closeAll(files[:i])
			return fmt.Errorf("opening artifact %s: %w", p, err)
		}
	}

	src := reconstruct.Sources{
		Flag:       files[0],
		Pos:        files[1],
		Noise:      files[2],
		NoisePos:   files[3],
		Orient:     files[4],
		Unaligned:  files[5],
		ReadLength: files[6],
	}
	if d.cp.PairedEnd {
		src.PosPair = files[7]
		src.OrientPair = files[8]
	}

	rec := &reconstruct.Reconstructor{Seq: d.seq, PreserveOrder: d.cp.PreserveOrder}
	err = rec.Block(reconstruct.NewStreams(src), d.cp.PairedEnd, base, n,
		d.reads1, d.reads2, d.lens1, d.lens2)
	closeAll(files)
	for _, p := range paths {
		if rerr := d.st.Release(p); err == nil {
			err = rerr
		}
	}
	return err
}

// decodeIDsAndQualities fills the id and quality arrays for mate j at
// [base, base+n).
func (d *shortDecoder) decodeIDsAndQualities(j int, blockNum uint64, base, n int) error {
	lens := d.lens1
	if j == 1 {
		lens = d.lens2
	}

	if d.cp.PreserveQuality {
		path := filepath.Join(d.st.Dir(), fmt.Sprintf("quality_%d.%s", j+1, blockSuffix(blockNum)))
		if err := d.cs.StrArray.DecodeArray(path, d.quals[base:base+n], n, lens[base:base+n]); err != nil {
			return err
		}
		if err := d.st.Release(path); err != nil {
			return err
		}
	}

	switch {
	case !d.cp.PreserveID:
		for i := base; i < base+n; i++ {
			d.ids[i] = fakeID(d.readsDone+uint64(i)+1, j+1)
		}
	case j == 1 && d.cp.PairedIDMatch:
		// Mate-1 ids are still in place from the first pass.
		for i := base; i < base+n; i++ {
			d.ids[i] = d.cs.ID.ModifyID(d.ids[i], d.cp.PairedIDCode)
		}
	default:
		path := filepath.Join(d.st.Dir(), fmt.Sprintf("id_%d.%s", j+1, blockSuffix(blockNum)))
		if err := d.cs.ID.DecodeBlock(path, d.ids[base:base+n], n); err != nil {
			return err
		}
		if err := d.st.Release(path); err != nil {
			return err
		}
	}
	return nil
}

func sliceFrom(a [][]byte, shift uint64) [][]byte {
	if a == nil {
		return nil
	}
	return a[shift:]
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close() //nolint:errcheck,gosec // read-only handles
		}
	}
}
