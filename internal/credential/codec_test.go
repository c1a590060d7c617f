package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyCurrent(t *testing.T) {
	encoded, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$2"))

	result, err := Verify(encoded, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.False(t, result.NeedsRehash)

	result, err = Verify(encoded, "wrong password")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestVerifyLegacy(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}

	tests := []struct {
		name string
		kind Kind
	}{
		{name: "sha1", kind: KindLegacySHA1},
		{name: "md5", kind: KindLegacyMD5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeLegacy(tt.kind, "hunter2", salt)
			require.NoError(t, err)

			result, err := Verify(encoded, "hunter2")
			require.NoError(t, err)
			assert.True(t, result.Matched)
			assert.True(t, result.NeedsRehash, "legacy match must trigger migration")

			result, err = Verify(encoded, "hunter3")
			require.NoError(t, err)
			assert.False(t, result.Matched)
			assert.True(t, result.NeedsRehash)
		})
	}
}

func TestDecodeTagDispatch(t *testing.T) {
	salt := []byte{0xAA, 0xBB}

	sha1Encoded, err := EncodeLegacy(KindLegacySHA1, "pw", salt)
	require.NoError(t, err)
	md5Encoded, err := EncodeLegacy(KindLegacyMD5, "pw", salt)
	require.NoError(t, err)

	d, err := Decode(sha1Encoded)
	require.NoError(t, err)
	assert.Equal(t, KindLegacySHA1, d.Kind)
	assert.Equal(t, salt, d.Salt)

	d, err = Decode(md5Encoded)
	require.NoError(t, err)
	assert.Equal(t, KindLegacyMD5, d.Kind)

	// The two families must not produce interchangeable digests.
	assert.NotEqual(t, sha1Encoded, md5Encoded)
}

func TestVerifyUnknownFormat(t *testing.T) {
	_, err := Verify("plaintext-not-a-digest", "pw")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Verify("some-other-tag$00$00", "pw")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestVerifyMalformedLegacy(t *testing.T) {
	_, err := Verify("legacy-sha1$not-hex$00", "pw")
	require.ErrorIs(t, err, ErrMalformedDigest)
}

func TestUTF16NullPadding(t *testing.T) {
	// ASCII characters are each followed by a null byte.
	assert.Equal(t, []byte{'a', 0x00, 'b', 0x00}, utf16Bytes("ab"))
}
