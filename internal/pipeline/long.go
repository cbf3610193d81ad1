package pipeline

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/springlab/unspring/internal/fastq"
	"github.com/springlab/unspring/internal/params"
	"github.com/springlab/unspring/internal/store"
)

type longDecoder struct {
	cp  *params.Params
	cfg Config
	cs  Codecs
	st  *store.Store

	reads [][]byte
	ids   [][]byte
	quals [][]byte
	lens  []uint32

	readsDone uint64
}

// decompressLong handles long-read archives: no reference, no noise; each
// block holds a length vector plus the reads and qualities as string
// arrays.
func decompressLong(cp *params.Params, cfg Config, cs Codecs) error {
	blockSize := uint64(cp.NumReadsPerBlockLong)
	total := totalRecords(cp)
	perStep := min(uint64(cfg.NumThreads)*blockSize, total)

	d := &longDecoder{
		cp:    cp,
		cfg:   cfg,
		cs:    cs,
		st:    store.New(cfg.TempDir, cs.Gen),
		reads: make([][]byte, perStep),
		ids:   make([][]byte, perStep),
		lens:  make([]uint32, perStep),
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

func (d *longDecoder) run(out1, out2 *fastq.Writer, blockSize, total uint64) error {
	firstBlock := d.cfg.Start / blockSize
	blocksDone := firstBlock
	d.readsDone = blocksDone * blockSize
	workers := uint64(d.cfg.NumThreads)
	perStep := uint64(len(d.reads))

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
			Debug("decoding long-read step")

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
					if err := d.decodeBlock(j, blockNum, tid, int(base), int(n)); err != nil {
						return fmt.Errorf("block %d: %w", blockNum, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
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
				err := out.WriteBlock(d.ids[shift:], d.reads[shift:], sliceFrom(d.quals, shift),
					int(outCount-shift), d.cp.PreserveQuality)
				if err != nil {
					return err
				}
			} else {
				if err := out.WriteBlock(d.ids, d.reads, d.quals, int(outCount), d.cp.PreserveQuality); err != nil {
					return err
				}
			}
		}

		d.readsDone += cur
		blocksDone += workers
	}
	return nil
}

func (d *longDecoder) decodeBlock(j int, blockNum uint64, tid, base, n int) error {
	suffix := blockSuffix(blockNum)
	mate := j + 1

	// Length vector first; everything else is sliced by it.
	scratch, err := d.st.Scratch(tid)
	if err != nil {
		return err
	}
	lenBase := fmt.Sprintf("readlength_%d.%s", mate, suffix)
	lenPath, err := d.st.Materialize(filepath.Join(d.st.Dir(), lenBase+".zpaq"), scratch, lenBase)
	if err != nil {
		return err
	}
	if err := d.readLengths(lenPath, base, n); err != nil {
		return err
	}
	if err := d.st.Release(lenPath); err != nil {
		return err
	}

	readPath := filepath.Join(d.st.Dir(), fmt.Sprintf("read_%d.%s", mate, suffix))
	if err := d.cs.StrArray.DecodeArray(readPath, d.reads[base:base+n], n, d.lens[base:base+n]); err != nil {
		return err
	}
	if err := d.st.Release(readPath); err != nil {
		return err
	}

	if d.cp.PreserveQuality {
		qualPath := filepath.Join(d.st.Dir(), fmt.Sprintf("quality_%d.%s", mate, suffix))
		if err := d.cs.StrArray.DecodeArray(qualPath, d.quals[base:base+n], n, d.lens[base:base+n]); err != nil {
			return err
		}
		if err := d.st.Release(qualPath); err != nil {
			return err
		}
	}

	switch {
	case !d.cp.PreserveID:
		for i := base; i < base+n; i++ {
			d.ids[i] = fakeID(d.readsDone+uint64(i)+1, mate)
		}
	case j == 1 && d.cp.PairedIDMatch:
		for i := base; i < base+n; i++ {
			d.ids[i] = d.cs.ID.ModifyID(d.ids[i], d.cp.PairedIDCode)
		}
	default:
		idPath := filepath.Join(d.st.Dir(), fmt.Sprintf("id_%d.%s", mate, suffix))
		if err := d.cs.ID.DecodeBlock(idPath, d.ids[base:base+n], n); err != nil {
			return err
		}
		if err := d.st.Release(idPath); err != nil {
			return err
		}
	}
	return nil
}

func (d *longDecoder) readLengths(path string, base, n int) error {
	data, err := os.ReadFile(path) //nolint:gosec // store-derived path
	if err != nil {
		return fmt.Errorf("opening length vector: %w", err)
	}
	if len(data) < n*4 {
		return fmt.Errorf("length vector %s: need %d entries, have %d bytes", path, n, len(data))
	}
	for i := range n {
		d.lens[base+i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return nil
}
