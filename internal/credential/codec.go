// Package credential encodes, decodes, and verifies password digests.
// The current algorithm is bcrypt; two legacy digest families are supported
// for verification only. The codec is pure: it performs no I/O and keeps no
// state, so persisting a migrated digest is the caller's job.
package credential

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/bcrypt"
)

// Kind identifies the digest family an encoded digest belongs to.
type Kind int

const (
	// KindBcrypt is the current algorithm. All new digests use it.
	KindBcrypt Kind = iota

	// KindLegacySHA1 is the older SHA-1 based keyed digest.
	KindLegacySHA1

	// KindLegacyMD5 is the oldest MD5 based keyed digest.
	KindLegacyMD5
)

// Legacy tag strings embedded in stored digests.
const (
	tagLegacySHA1 = "legacy-sha1"
	tagLegacyMD5  = "legacy-md5"
)

var (
	// ErrUnknownFormat indicates the stored digest is neither the current
	// encoding nor a recognized legacy encoding.
	ErrUnknownFormat = errors.New("unknown digest format")

	// ErrMalformedDigest indicates a recognized tag with an unparseable body.
	ErrMalformedDigest = errors.New("malformed digest")
)

// Digest is a stored digest decoded into its variant.
type Digest struct {
	// Kind is the digest family.
	Kind Kind

	// Salt is the stored salt (legacy kinds only).
	Salt []byte

	// Sum is the stored digest bytes (legacy kinds only).
	Sum []byte

	// Encoded is the original encoded string (bcrypt keeps everything here).
	Encoded string
}

// Result is the outcome of verifying a password against a stored digest.
type Result struct {
	// Matched is true when the password matches the digest.
	Matched bool

	// NeedsRehash is true when the match was against a legacy digest.
	// The caller must immediately re-hash with the current algorithm and
	// persist the result; legacy verification is a one-shot migration
	// trigger, not a steady-state path.
	NeedsRehash bool
}

// Hash digests a password with the current algorithm. The returned string
// is self-describing bcrypt and can be stored as-is.
func Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Decode parses a stored digest into its tagged variant.
//
// Encodings:
//   - bcrypt: the standard "$2..." string.
//   - legacy: "<tag>$<hex salt>$<hex digest>" where tag selects the hash
//     primitive.
func Decode(encoded string) (Digest, error) {
	if strings.HasPrefix(encoded, "$2") {
		return Digest{Kind: KindBcrypt, Encoded: encoded}, nil
	}

	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 {
		return Digest{}, ErrUnknownFormat
	}

	var kind Kind
	switch parts[0] {
	case tagLegacySHA1:
		kind = KindLegacySHA1
	case tagLegacyMD5:
		kind = KindLegacyMD5
	default:
		return Digest{}, ErrUnknownFormat
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return Digest{}, fmt.Errorf("%w: bad salt: %v", ErrMalformedDigest, err)
	}
	sum, err := hex.DecodeString(parts[2])
	if err != nil {
		return Digest{}, fmt.Errorf("%w: bad digest: %v", ErrMalformedDigest, err)
	}

	return Digest{Kind: kind, Salt: salt, Sum: sum, Encoded: encoded}, nil
}

// Verify checks a password against a stored digest. A match against a
// legacy digest sets NeedsRehash; a mismatch is reported with Matched
// false and a nil error. Undecodable digests return ErrUnknownFormat.
func Verify(encoded, password string) (Result, error) {
	digest, err := Decode(encoded)
	if err != nil {
		return Result{}, err
	}

	switch digest.Kind {
	case KindBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(digest.Encoded), []byte(password))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return Result{}, nil
			}
			return Result{}, fmt.Errorf("bcrypt comparison failed: %w", err)
		}
		return Result{Matched: true}, nil

	case KindLegacySHA1:
		sum := legacySum(sha1.New(), password, digest.Salt)
		return Result{
			Matched:     subtle.ConstantTimeCompare(sum, digest.Sum) == 1,
			NeedsRehash: true,
		}, nil

	case KindLegacyMD5:
		sum := legacySum(md5.New(), password, digest.Salt)
		return Result{
			Matched:     subtle.ConstantTimeCompare(sum, digest.Sum) == 1,
			NeedsRehash: true,
		}, nil
	}

	return Result{}, ErrUnknownFormat
}

// EncodeLegacy builds a legacy encoded digest. Only used by migrations
// and tests; new digests always come from Hash.
func EncodeLegacy(kind Kind, password string, salt []byte) (string, error) {
	var tag string
	var h hash.Hash
	switch kind {
	case KindLegacySHA1:
		tag, h = tagLegacySHA1, sha1.New()
	case KindLegacyMD5:
		tag, h = tagLegacyMD5, md5.New()
	default:
		return "", ErrUnknownFormat
	}

	sum := legacySum(h, password, salt)
	return tag + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum), nil
}

// legacySum computes H(utf16le(password) || salt). The legacy systems
// stored passwords as UTF-16 with a null byte after every character.
func legacySum(h hash.Hash, password string, salt []byte) []byte {
	h.Write(utf16Bytes(password))
	h.Write(salt)
	return h.Sum(nil)
}

// utf16Bytes encodes a string as little-endian UTF-16 bytes.
func utf16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	return buf
}
