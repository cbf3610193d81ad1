package params

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Params
	}{
		{
			name: "single-end defaults",
			p: Params{
				NumReads:             100,
				NumReadsPerBlock:     32,
				NumReadsPerBlockLong: 16,
				NumThrEncode:         4,
			},
		},
		{
			name: "paired-end with everything preserved",
			p: Params{
				NumReads:             2000,
				NumReadsPerBlock:     256,
				NumReadsPerBlockLong: 64,
				NumThrEncode:         8,
				PairedEnd:            true,
				PreserveID:           true,
				PreserveQuality:      true,
				PreserveOrder:        true,
				PairedIDMatch:        true,
				PairedIDCode:         2,
			},
		},
		{
			name: "long mode",
			p: Params{
				NumReads:             10,
				NumReadsPerBlockLong: 4,
				NumThrEncode:         1,
				LongMode:             true,
				PreserveQuality:      true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, tt.p.Write(&buf))

			got, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, &tt.p, got)
		})
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := Params{NumReads: 1, NumReadsPerBlock: 1, NumThrEncode: 1}
	require.NoError(t, p.Write(&buf))

	data := buf.Bytes()
	data[0] = 'X'
	_, err := Read(bytes.NewReader(data))
	assert.ErrorContains(t, err, "magic")
}

func TestReadRejectsCorruptedBody(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := Params{NumReads: 42, NumReadsPerBlock: 8, NumThrEncode: 2}
	require.NoError(t, p.Write(&buf))

	data := buf.Bytes()
	data[6] ^= 0xFF // flip a byte inside NumReads
	_, err := Read(bytes.NewReader(data))
	assert.ErrorContains(t, err, "digest mismatch")
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := Params{
		NumReads:         8,
		NumReadsPerBlock: 4,
		NumThrEncode:     2,
		PairedEnd:        true,
		PairedIDCode:     1,
		PairedIDMatch:    true,
	}
	require.NoError(t, p.Save(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, &p, got)
}
