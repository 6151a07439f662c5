package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(fill byte) *[KeySize]byte {
	key, _ := KeyFromBytes(bytes.Repeat([]byte{fill}, KeySize))
	return key
}

func TestSealOpen(t *testing.T) {
	key := testKey(7)
	type payload struct {
		Endpoint string `json:"endpoint"`
		Count    int    `json:"count"`
	}

	sealed, err := Seal(payload{Endpoint: "https://admin.example.com", Count: 3}, key)
	require.NoError(t, err)

	var got payload
	require.NoError(t, Open(sealed, key, &got))
	require.Equal(t, payload{Endpoint: "https://admin.example.com", Count: 3}, got)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := testKey(1)
	a, err := Seal([]byte(`{}`), key)
	require.NoError(t, err)
	b, err := Seal([]byte(`{}`), key)
	require.NoError(t, err)
	require.NotEqual(t, a[:nonceSize], b[:nonceSize])
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(2)
	sealed, err := Seal(map[string]string{"k": "v"}, key)
	require.NoError(t, err)

	var out map[string]string
	require.ErrorIs(t, Open(sealed, testKey(3), &out), ErrDecrypt)

	sealed[len(sealed)-1] ^= 0xff
	require.ErrorIs(t, Open(sealed, key, &out), ErrDecrypt)

	require.Error(t, Open(sealed[:10], key, &out))
}

func TestKeyFromBytes(t *testing.T) {
	_, err := KeyFromBytes(make([]byte, 16))
	require.Error(t, err)
}
