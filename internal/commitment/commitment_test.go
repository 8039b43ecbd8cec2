package commitment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/zoltar/internal/words"
)

func TestOfKnownVectors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"hello", "0x1c8aff950685c2ed4bc3174f3472287b56d9517b9c948127319a09a7a36deac8"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Of(tc.in).Hex(), "keccak256(%q)", tc.in)
	}
}

func TestOfDeterministic(t *testing.T) {
	for _, s := range []string{"bitcoin", "luna", "dogwifhat", "ünïcode"} {
		assert.Equal(t, Of(s), Of(s))
		assert.True(t, Verify(s, Of(s)))
	}
	assert.False(t, Verify("luna", Of("lunatic")))
}

func TestNoCollisionsAcrossWordLists(t *testing.T) {
	sel, err := words.Load()
	require.NoError(t, err)

	seen := map[Digest]string{}
	for _, w := range sel.Words() {
		d := Of(w)
		if prev, ok := seen[d]; ok {
			t.Fatalf("collision between %q and %q", prev, w)
		}
		seen[d] = w
	}
}

func TestParseRoundTrip(t *testing.T) {
	d := Of("bitcoin")
	got, err := Parse(d.Hex())
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = Parse("0x1234")
	assert.ErrorIs(t, err, ErrInvalidDigest)
	_, err = Parse("not-hex")
	assert.ErrorIs(t, err, ErrInvalidDigest)
}
