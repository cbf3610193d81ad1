package reconstruct

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sources holds one reader per per-block artifact stream. PosPair and
// OrientPair are nil for single-end archives.
type Sources struct {
	Flag       io.Reader
	Pos        io.Reader
	Noise      io.Reader
	NoisePos   io.Reader
	Orient     io.Reader
	Unaligned  io.Reader
	ReadLength io.Reader
	PosPair    io.Reader
	OrientPair io.Reader
}

// Streams owns the per-block stream handles and exposes typed accessors.
// All streams advance in lockstep with the flag stream; every field read
// must happen in record order or alignment is lost.
type Streams struct {
	flag       *bufio.Reader
	pos        *bufio.Reader
	noise      *bufio.Reader
	noisePos   *bufio.Reader
	orient     *bufio.Reader
	unaligned  *bufio.Reader
	readLength *bufio.Reader
	posPair    *bufio.Reader
	orientPair *bufio.Reader
	buf        [8]byte
}

// NewStreams wraps the artifact readers.
func NewStreams(src Sources) *Streams {
	wrap := func(r io.Reader) *bufio.Reader {
		if r == nil {
			return nil
		}
		return bufio.NewReader(r)
	}
	return &Streams{
		flag:       wrap(src.Flag),
		pos:        wrap(src.Pos),
		noise:      wrap(src.Noise),
		noisePos:   wrap(src.NoisePos),
		orient:     wrap(src.Orient),
		unaligned:  wrap(src.Unaligned),
		readLength: wrap(src.ReadLength),
		posPair:    wrap(src.PosPair),
		orientPair: wrap(src.OrientPair),
	}
}

// NextFlag reads the record flag character.
func (s *Streams) NextFlag() (byte, error) {
	b, err := s.flag.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("flag stream: %w", err)
	}
	if b < '1' || b > '4' {
		return 0, fmt.Errorf("%w: flag %q", ErrInvariant, b)
	}
	return b, nil
}

// NextLength reads a mate length.
func (s *Streams) NextLength() (uint16, error) {
	if _, err := io.ReadFull(s.readLength, s.buf[:2]); err != nil {
		return 0, fmt.Errorf("read-length stream: %w", err)
	}
	return binary.LittleEndian.Uint16(s.buf[:2]), nil
}

// NextPosAbs reads an absolute reference position.
func (s *Streams) NextPosAbs() (uint64, error) {
	if _, err := io.ReadFull(s.pos, s.buf[:8]); err != nil {
		return 0, fmt.Errorf("position stream: %w", err)
	}
	return binary.LittleEndian.Uint64(s.buf[:8]), nil
}

// NextPosDelta reads a position delta; PosDeltaEscape marks an embedded
// absolute reset.
func (s *Streams) NextPosDelta() (uint16, error) {
	if _, err := io.ReadFull(s.pos, s.buf[:2]); err != nil {
		return 0, fmt.Errorf("position stream: %w", err)
	}
	return binary.LittleEndian.Uint16(s.buf[:2]), nil
}

// PosDeltaEscape is the delta value announcing an absolute u64 reset.
const PosDeltaEscape = 0xFFFF

// NextOrient reads an absolute orientation, 'd' or 'r'.
func (s *Streams) NextOrient() (byte, error) {
	b, err := s.orient.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("orientation stream: %w", err)
	}
	if b != 'd' && b != 'r' {
		return 0, fmt.Errorf("%w: orientation %q", ErrInvariant, b)
	}
	return b, nil
}

// NextNoise reads one noise line, one per non-singleton mate. An empty
// line means no substitutions.
func (s *Streams) NextNoise() ([]byte, error) {
	line, err := s.noise.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return line, nil
		}
		return nil, fmt.Errorf("noise stream: %w", err)
	}
	return line[:len(line)-1], nil
}

// NextNoisePos reads a noise site delta.
func (s *Streams) NextNoisePos() (uint16, error) {
	if _, err := io.ReadFull(s.noisePos, s.buf[:2]); err != nil {
		return 0, fmt.Errorf("noise-position stream: %w", err)
	}
	return binary.LittleEndian.Uint16(s.buf[:2]), nil
}

// NextUnaligned reads a verbatim singleton read of n bytes.
func (s *Streams) NextUnaligned(n int) ([]byte, error) {
	read := make([]byte, n)
	if _, err := io.ReadFull(s.unaligned, read); err != nil {
		return nil, fmt.Errorf("unaligned stream: %w", err)
	}
	return read, nil
}

// NextPairDelta reads mate-2's signed position delta relative to mate-1.
func (s *Streams) NextPairDelta() (int16, error) {
	if _, err := io.ReadFull(s.posPair, s.buf[:2]); err != nil {
		return 0, fmt.Errorf("pair-position stream: %w", err)
	}
	return int16(binary.LittleEndian.Uint16(s.buf[:2])), nil
}

// NextPairOrient reads mate-2's relative orientation, '0' (flip) or '1'
// (same).
func (s *Streams) NextPairOrient() (byte, error) {
	b, err := s.orientPair.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("pair-orientation stream: %w", err)
	}
	if b != '0' && b != '1' {
		return 0, fmt.Errorf("%w: relative orientation %q", ErrInvariant, b)
	}
	return b, nil
}
