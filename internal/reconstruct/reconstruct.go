package reconstruct

import (
	"fmt"
)

// Reconstructor decodes the records of one block. Position-delta state is
// per block, so use a fresh Reconstructor per block.
type Reconstructor struct {
	Seq           []byte // shared reference, read-only
	PreserveOrder bool

	prevPos uint64
	seeded  bool
}

// Block decodes n records from st, filling the mate arrays and length
// arrays at [base, base+n). For single-end archives reads2 and lens2 are
// ignored.
func (r *Reconstructor) Block(st *Streams, pairedEnd bool, base, n int,
	reads1, reads2 [][]byte, lens1, lens2 []uint32) error {
	for i := base; i < base+n; i++ {
		flag, err := st.NextFlag()
		if err != nil {
			return err
		}
		l1, err := st.NextLength()
		if err != nil {
			return err
		}
		lens1[i] = uint32(l1)

		var pos1 uint64
		var rc1 byte
		singleton1 := flag == '2' || flag == '4'
		if !singleton1 {
			pos1, err = r.nextPos(st)
			if err != nil {
				return err
			}
			rc1, err = st.NextOrient()
			if err != nil {
				return err
			}
			reads1[i], err = r.materialize(st, pos1, uint32(l1), rc1)
			if err != nil {
				return err
			}
		} else {
			reads1[i], err = st.NextUnaligned(int(l1))
			if err != nil {
				return err
			}
		}

		if !pairedEnd {
			continue
		}

		l2, err := st.NextLength()
		if err != nil {
			return err
		}
		lens2[i] = uint32(l2)

		singleton2 := flag == '2' || flag == '3'
		if !singleton2 {
			var pos2 uint64
			var rc2 byte
			if flag == '1' || flag == '4' {
				// Mates encoded independently.
				pos2, err = st.NextPosAbs()
				if err != nil {
					return err
				}
				rc2, err = st.NextOrient()
				if err != nil {
					return err
				}
			} else {
				// Mate-2 encoded relative to mate-1.
				d, err := st.NextPairDelta()
				if err != nil {
					return err
				}
				pos2 = pos1 + uint64(int64(d))
				rel, err := st.NextPairOrient()
				if err != nil {
					return err
				}
				rc2 = RelativeOrient(rc1, rel)
			}
			reads2[i], err = r.materialize(st, pos2, uint32(l2), rc2)
			if err != nil {
				return err
			}
		} else {
			reads2[i], err = st.NextUnaligned(int(l2))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// nextPos decodes the next mate-1 position. In preserve-order mode every
// record carries an absolute u64; otherwise the first non-singleton of the
// block seeds the delta chain and later records carry u16 deltas with an
// escape for absolute resets.
func (r *Reconstructor) nextPos(st *Streams) (uint64, error) {
	if r.PreserveOrder {
		return st.NextPosAbs()
	}
	if !r.seeded {
		r.seeded = true
		pos, err := st.NextPosAbs()
		if err != nil {
			return 0, err
		}
		r.prevPos = pos
		return pos, nil
	}
	d, err := st.NextPosDelta()
	if err != nil {
		return 0, err
	}
	var pos uint64
	if d == PosDeltaEscape {
		pos, err = st.NextPosAbs()
		if err != nil {
			return 0, err
		}
	} else {
		pos = r.prevPos + uint64(d)
	}
	r.prevPos = pos
	return pos, nil
}

// materialize copies the read off the reference, applies the noise record
// and orients it.
func (r *Reconstructor) materialize(st *Streams, pos uint64, length uint32, orient byte) ([]byte, error) {
	if pos+uint64(length) > uint64(len(r.Seq)) {
		return nil, fmt.Errorf("%w: position %d + length %d exceeds reference length %d",
			ErrInvariant, pos, length, len(r.Seq))
	}
	read := make([]byte, length)
	copy(read, r.Seq[pos:pos+uint64(length)])

	noise, err := st.NextNoise()
	if err != nil {
		return nil, err
	}
	var site uint16
	for _, code := range noise {
		if code < '0' || code > '3' {
			return nil, fmt.Errorf("%w: noise code %q", ErrInvariant, code)
		}
		d, err := st.NextNoisePos()
		if err != nil {
			return nil, err
		}
		site += d
		if uint32(site) >= length {
			return nil, fmt.Errorf("%w: noise site %d exceeds read length %d", ErrInvariant, site, length)
		}
		read[site] = SubstituteNoise(read[site], code)
	}

	if orient == 'r' {
		read = ReverseComplement(read)
	}
	return read, nil
}

// RelativeOrient derives mate-2's orientation from mate-1's and the
// relative code: '0' flips, '1' keeps.
func RelativeOrient(rc1, rel byte) byte {
	if rel == '0' {
		if rc1 == 'd' {
			return 'r'
		}
		return 'd'
	}
	return rc1
}
