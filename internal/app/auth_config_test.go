package app

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	cases := map[string]string{
		"hex":            hex.EncodeToString(raw),
		"base64":         base64.StdEncoding.EncodeToString(raw),
		"base64 unpadded": base64.RawStdEncoding.EncodeToString(raw),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeKey(" " + encoded + " ")
			require.NoError(t, err)
			require.Equal(t, raw, decoded)
		})
	}

	plain, err := DecodeKey("this-is-a-raw-32-byte-key!!!")
	require.NoError(t, err)
	require.Equal(t, "this-is-a-raw-32-byte-key!!!", string(plain))

	_, err = DecodeKey("   ")
	require.Error(t, err)
}

func TestMFAEncryptionKey(t *testing.T) {
	key, err := AuthConfig{}.MFAEncryptionKey()
	require.NoError(t, err)
	require.Nil(t, key)

	cfg := AuthConfig{MFA: MFASettings{EncryptionKey: "0123456789abcdef0123456789abcdef"}}
	key, err = cfg.MFAEncryptionKey()
	require.NoError(t, err)
	require.Len(t, key, 16)

	cfg.MFA.EncryptionKey = "abcd"
	_, err = cfg.MFAEncryptionKey()
	require.ErrorContains(t, err, "current: 2")
}

func TestAuthConfigValidate(t *testing.T) {
	valid := AuthConfig{JWT: JWTSettings{Secret: strings.Repeat("s", 48), TTL: time.Hour}}
	require.NoError(t, valid.Validate())

	broken := AuthConfig{
		JWT:   JWTSettings{Secret: " ", TTL: -time.Second},
		Local: LocalAuthSettings{LockoutThreshold: -1},
		MFA:   MFASettings{EncryptionKey: "abcd"},
	}
	err := broken.Validate()
	require.Error(t, err)
	for _, fragment := range []string{"auth.jwt.secret", "access_token_ttl", "lockout", "encryption_key"} {
		require.ErrorContains(t, err, fragment)
	}
}
