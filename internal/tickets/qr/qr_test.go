package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	g, err := NewGenerator("secret")
	require.NoError(t, err)

	p := Payload{TicketID: "t1", EventID: "e1", Email: "bob@stanford.edu"}
	sealed, err := g.Seal(p)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "bob")

	got, err := g.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	again, err := g.Seal(p)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestOpen_Rejects(t *testing.T) {
	g, err := NewGenerator("secret")
	require.NoError(t, err)
	other, err := NewGenerator("other")
	require.NoError(t, err)

	sealed, err := other.Seal(Payload{TicketID: "t1"})
	require.NoError(t, err)

	for name, input := range map[string]string{
		"wrong key":  sealed,
		"not base64": "%%%",
		"too short":  "AAAA",
		"empty":      "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := g.Open(input)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}

	tampered := []byte(sealed)
	tampered[len(tampered)-2] ^= 1
	_, err = other.Open(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPNG(t *testing.T) {
	g, err := NewGenerator("secret")
	require.NoError(t, err)

	img, err := g.PNG(Payload{TicketID: "t1", EventID: "e1"}, 256)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}
