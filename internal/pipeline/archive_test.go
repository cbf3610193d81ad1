package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/springlab/unspring/internal/codec"
	"github.com/springlab/unspring/internal/params"
	"github.com/springlab/unspring/internal/refseq"
)

// mateSpec describes one mate of a record in a fixture archive.
type mateSpec struct {
	length     int
	pos        uint64
	orient     byte
	noise      string   // noise codes, one per substitution
	noiseSites []uint16 // absolute substitution sites, strictly increasing
	unaligned  string   // verbatim read for singleton mates
	id         string
	qual       string
}

// recSpec is one record: a single read, or a pair under its flag.
type recSpec struct {
	flag   byte
	m1, m2 mateSpec
}

func aligned(pos uint64, length int, orient byte) mateSpec {
	return mateSpec{length: length, pos: pos, orient: orient}
}

func singleton(read string) mateSpec {
	return mateSpec{length: len(read), unaligned: read}
}

var packTable = map[byte]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}

// writeRefShards splits seq evenly into the archive's reference shards.
func writeRefShards(t *testing.T, dir string, seq string, shards int) {
	t.Helper()

	for k := range shards {
		part := seq[k*len(seq)/shards : (k+1)*len(seq)/shards]
		full := len(part) / 4 * 4
		packed := make([]byte, 0, full/4)
		for i := 0; i < full; i += 4 {
			var b byte
			for j := range 4 {
				b |= packTable[part[i+j]] << (j * 2)
			}
			packed = append(packed, b)
		}
		shard := filepath.Join(dir, refseq.Prefix+"."+strconv.Itoa(k))
		require.NoError(t, codec.Zstd{}.Encode(shard+".zpaq", packed))
		require.NoError(t, os.WriteFile(shard+".tail", []byte(part[full:]), 0o600))
	}
}

// buildShortArchive lays out a complete short-mode archive temp directory.
// Records are grouped into blocks of cp.NumReadsPerBlock; position delta
// encoding is applied automatically when order is not preserved.
func buildShortArchive(t *testing.T, cp params.Params, seq string, recs []recSpec) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, cp.Save(dir))
	writeRefShards(t, dir, seq, int(cp.NumThrEncode))

	blockSize := int(cp.NumReadsPerBlock)
	for blockNum := 0; blockNum*blockSize < len(recs); blockNum++ {
		hi := min(len(recs), (blockNum+1)*blockSize)
		writeShortBlock(t, dir, &cp, uint64(blockNum), recs[blockNum*blockSize:hi])
	}
	return dir
}

func writeShortBlock(t *testing.T, dir string, cp *params.Params, blockNum uint64, recs []recSpec) {
	t.Helper()

	var flag, pos, noise, noisePos, orient, unalignedBuf, readLength bytes.Buffer
	var posPair, orientPair bytes.Buffer
	var ids1, ids2, quals1, quals2 [][]byte

	u16 := func(b *bytes.Buffer, v uint16) {
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], v)
		b.Write(buf[:])
	}
	u64 := func(b *bytes.Buffer, v uint64) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		b.Write(buf[:])
	}

	writeNoise := func(m *mateSpec) {
		noise.WriteString(m.noise + "\n")
		prev := uint16(0)
		for _, site := range m.noiseSites {
			u16(&noisePos, site-prev)
			prev = site
		}
	}

	var prevPos uint64
	seeded := false
	for _, r := range recs {
		flag.WriteByte(r.flag)
		u16(&readLength, uint16(r.m1.length))

		singleton1 := r.flag == '2' || r.flag == '4'
		if !singleton1 {
			if cp.PreserveOrder {
				u64(&pos, r.m1.pos)
			} else if !seeded {
				seeded = true
				u64(&pos, r.m1.pos)
				prevPos = r.m1.pos
			} else if r.m1.pos >= prevPos && r.m1.pos-prevPos < 0xFFFF {
				u16(&pos, uint16(r.m1.pos-prevPos))
				prevPos = r.m1.pos
			} else {
				u16(&pos, 0xFFFF)
				u64(&pos, r.m1.pos)
				prevPos = r.m1.pos
			}
			orient.WriteByte(r.m1.orient)
			writeNoise(&r.m1)
		} else {
			unalignedBuf.WriteString(r.m1.unaligned)
		}

		if cp.PairedEnd {
			u16(&readLength, uint16(r.m2.length))
			singleton2 := r.flag == '2' || r.flag == '3'
			if !singleton2 {
				u64(&pos, r.m2.pos)
				orient.WriteByte(r.m2.orient)
				writeNoise(&r.m2)
			} else {
				unalignedBuf.WriteString(r.m2.unaligned)
			}
		}

		if cp.PreserveID {
			ids1 = append(ids1, []byte(r.m1.id))
			ids2 = append(ids2, []byte(r.m2.id))
		}
		if cp.PreserveQuality {
			quals1 = append(quals1, []byte(r.m1.qual))
			quals2 = append(quals2, []byte(r.m2.qual))
		}
	}

	suffix := blockSuffix(blockNum)
	streams := []struct {
		base string
		data []byte
	}{
		{"read_flag.txt", flag.Bytes()},
		{"read_pos.bin", pos.Bytes()},
		{"read_noise.txt", noise.Bytes()},
		{"read_noisepos.bin", noisePos.Bytes()},
		{"read_rev.txt", orient.Bytes()},
		{"read_unaligned.txt", unalignedBuf.Bytes()},
		{"read_lengths.bin", readLength.Bytes()},
	}
	if cp.PairedEnd {
		streams = append(streams,
			struct {
				base string
				data []byte
			}{"read_pos_pair.bin", posPair.Bytes()},
			struct {
				base string
				data []byte
			}{"read_rev_pair.txt", orientPair.Bytes()},
		)
	}
	for _, s := range streams {
		archive := filepath.Join(dir, s.base+"."+suffix+".zpaq")
		require.NoError(t, codec.Zstd{}.Encode(archive, s.data))
	}

	if cp.PreserveQuality {
		require.NoError(t, codec.ZstdStrArray{}.EncodeArray(
			filepath.Join(dir, "quality_1."+suffix), quals1))
		if cp.PairedEnd {
			require.NoError(t, codec.ZstdStrArray{}.EncodeArray(
				filepath.Join(dir, "quality_2."+suffix), quals2))
		}
	}
	if cp.PreserveID {
		require.NoError(t, codec.ZstdID{}.EncodeBlock(
			filepath.Join(dir, "id_1."+suffix), ids1))
		if cp.PairedEnd && !cp.PairedIDMatch {
			require.NoError(t, codec.ZstdID{}.EncodeBlock(
				filepath.Join(dir, "id_2."+suffix), ids2))
		}
	}
}

// buildLongArchive lays out a long-mode archive temp directory.
func buildLongArchive(t *testing.T, cp params.Params, recs []recSpec) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, cp.Save(dir))

	blockSize := int(cp.NumReadsPerBlockLong)
	for blockNum := 0; blockNum*blockSize < len(recs); blockNum++ {
		hi := min(len(recs), (blockNum+1)*blockSize)
		writeLongBlock(t, dir, &cp, uint64(blockNum), recs[blockNum*blockSize:hi])
	}
	return dir
}

func writeLongBlock(t *testing.T, dir string, cp *params.Params, blockNum uint64, recs []recSpec) {
	t.Helper()

	suffix := blockSuffix(blockNum)
	mates := 1
	if cp.PairedEnd {
		mates = 2
	}
	for j := range mates {
		var lengths bytes.Buffer
		var reads, ids, quals [][]byte
		for _, r := range recs {
			m := r.m1
			if j == 1 {
				m = r.m2
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(len(m.unaligned)))
			lengths.Write(buf[:])
			reads = append(reads, []byte(m.unaligned))
			ids = append(ids, []byte(m.id))
			quals = append(quals, []byte(m.qual))
		}

		mate := strconv.Itoa(j + 1)
		require.NoError(t, codec.Zstd{}.Encode(
			filepath.Join(dir, "readlength_"+mate+"."+suffix+".zpaq"), lengths.Bytes()))
		require.NoError(t, codec.ZstdStrArray{}.EncodeArray(
			filepath.Join(dir, "read_"+mate+"."+suffix), reads))
		if cp.PreserveQuality {
			require.NoError(t, codec.ZstdStrArray{}.EncodeArray(
				filepath.Join(dir, "quality_"+mate+"."+suffix), quals))
		}
		if cp.PreserveID && !(j == 1 && cp.PairedIDMatch) {
			require.NoError(t, codec.ZstdID{}.EncodeBlock(
				filepath.Join(dir, "id_"+mate+"."+suffix), ids))
		}
	}
}
