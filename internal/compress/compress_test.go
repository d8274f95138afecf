package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

func TestCodecs_RoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte(`{"id":"abc","features":[0.1,0.2,0.3]}`), 200)
	for _, alg := range []Algorithm{None, Gzip, Zstd} {
		t.Run(string(alg), func(t *testing.T) {
			c, err := New(alg, DefaultLevel)
			require.NoError(t, err)
			assert.Equal(t, alg, c.Algorithm())

			out, _, err := c.Compress(src)
			require.NoError(t, err)
			if alg != None {
				assert.Less(t, len(out), len(src))
			}

			back, err := c.Decompress(out)
			require.NoError(t, err)
			assert.Equal(t, src, back)
		})
	}
}

func TestCodecs_CorruptInput(t *testing.T) {
	for _, alg := range []Algorithm{Gzip, Zstd} {
		c, err := New(alg, DefaultLevel)
		require.NoError(t, err)
		_, err = c.Decompress([]byte("definitely not compressed"))
		assert.ErrorIs(t, err, errs.ErrCompression, alg)
	}
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("lz4", 1)
	assert.Error(t, err)
	_, err = New(Gzip, 42)
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm(" ZSTD ")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)
	_, err = ParseAlgorithm("fbcu")
	assert.Error(t, err)
}
