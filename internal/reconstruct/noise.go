// Package reconstruct rebuilds reads from the shared reference sequence
// and the per-block positional, orientation and noise streams.
package reconstruct

import "errors"

// ErrInvariant reports a decoded value outside its contract: a flag or
// orientation outside its alphabet, or a position past the reference end.
var ErrInvariant = errors.New("invariant violation")

// noiseSub maps (reference base, noise code) to the substituted base.
// Codes '0'..'2' select the three other standard bases, '3' selects N;
// for a reference N the codes select A, G, C, T.
var noiseSub [128][128]byte

// rcBase maps a base to its complement; N maps to itself.
var rcBase [256]byte

func init() {
	sub := map[byte]string{
		'A': "CGTN",
		'C': "AGTN",
		'G': "TACN",
		'T': "GCAN",
		'N': "AGCT",
	}
	for base, row := range sub {
		for code := range 4 {
			noiseSub[base]['0'+code] = row[code]
		}
	}

	for i := range rcBase {
		rcBase[i] = byte(i)
	}
	rcBase['A'] = 'T'
	rcBase['T'] = 'A'
	rcBase['C'] = 'G'
	rcBase['G'] = 'C'
	rcBase['N'] = 'N'
}

// SubstituteNoise returns the base obtained by applying a noise code to a
// reference base.
func SubstituteNoise(base, code byte) byte {
	return noiseSub[base&0x7F][code&0x7F]
}

// ReverseComplement returns the reverse complement of a read over
// {A,C,G,T,N}.
func ReverseComplement(s []byte) []byte {
	out := make([]byte, len(s))
	for i, b := range s {
		out[len(s)-1-i] = rcBase[b]
	}
	return out
}
