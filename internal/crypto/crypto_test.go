package crypto_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"depot/internal/crypto"
)

func TestHexSHA256(t *testing.T) {
	require.Equal(t, crypto.EmptyStringSHA256, crypto.HexSHA256([]byte("")))
	require.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		crypto.HexSHA256([]byte("hello")),
	)
}

func TestHexMD5(t *testing.T) {
	require.Equal(t, "bd0395ea5cc0aaa507365afb09da5a04", crypto.HexMD5([]byte("hello depot")))
}

func TestMD5Sum_MatchesHexMD5(t *testing.T) {
	data := []byte("round trip me")
	require.Equal(t, crypto.HexMD5(data), hex.EncodeToString(crypto.MD5Sum(data)))
}

func TestHMACSHA256_DeterministicAndKeyed(t *testing.T) {
	a := crypto.HMACSHA256([]byte("key1"), "message")
	b := crypto.HMACSHA256([]byte("key1"), "message")
	c := crypto.HMACSHA256([]byte("key2"), "message")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestHexHMACSHA256(t *testing.T) {
	hexSig := crypto.HexHMACSHA256([]byte("secret"), "payload")
	require.Len(t, hexSig, 64)
	require.Equal(t, hexSig, crypto.HexHMACSHA256([]byte("secret"), "payload"))
}

func TestEqualHex(t *testing.T) {
	require.True(t, crypto.EqualHex("deadbeef", "deadbeef"))
	require.False(t, crypto.EqualHex("deadbeef", "deadbeee"))
	require.False(t, crypto.EqualHex("not-hex", "deadbeef"))
	require.False(t, crypto.EqualHex("deadbeef", "not-hex"))
}

func TestEqualString(t *testing.T) {
	require.True(t, crypto.EqualString("depotadmin", "depotadmin"))
	require.False(t, crypto.EqualString("depotadmin", "wrong"))
}
