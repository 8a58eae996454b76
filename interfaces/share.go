package interfaces

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tidwall/gjson"
)

// ShareRecord is one serialized key-share fragment. The storage module treats
// it as an opaque UTF-8 JSON document and returns it byte-for-byte; only the
// wrapping SDK interprets its fields.
type ShareRecord []byte

// NewShareRecord serializes v into a ShareRecord.
func NewShareRecord(v any) (ShareRecord, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize share record: %w", err)
	}
	return ShareRecord(data), nil
}

// ParseShareRecord validates text as JSON and returns it as a record.
func ParseShareRecord(text []byte) (ShareRecord, error) {
	if !json.Valid(text) {
		return nil, errors.New("malformed share record: invalid JSON")
	}
	return ShareRecord(bytes.Clone(text)), nil
}

// Decode unmarshals the record into v.
func (r ShareRecord) Decode(v any) error {
	return json.Unmarshal(r, v)
}

// Validate checks that the record is well-formed JSON.
func (r ShareRecord) Validate() error {
	if len(r) == 0 {
		return errors.New("empty share record")
	}
	if !json.Valid(r) {
		return errors.New("malformed share record: invalid JSON")
	}
	return nil
}

// Compact returns the record without insignificant whitespace. This is the
// text persisted by both stores.
func (r ShareRecord) Compact() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return nil, fmt.Errorf("malformed share record: %w", err)
	}
	return buf.Bytes(), nil
}

// Equal reports whether two records hold the same JSON text once compacted.
func (r ShareRecord) Equal(other ShareRecord) bool {
	a, errA := r.Compact()
	b, errB := other.Compact()
	if errA != nil || errB != nil {
		return bytes.Equal(r, other)
	}
	return bytes.Equal(a, b)
}

// ShareIndex returns the share index embedded in the record, looked up at
// share.shareIndex and then at the top level.
func (r ShareRecord) ShareIndex() (string, bool) {
	for _, path := range []string{"share.shareIndex", "shareIndex"} {
		if v := gjson.GetBytes(r, path); v.Exists() && v.String() != "" {
			return v.String(), true
		}
	}
	return "", false
}

// PolynomialID returns the polynomial generation the share belongs to.
func (r ShareRecord) PolynomialID() (string, bool) {
	v := gjson.GetBytes(r, "polynomialID")
	if !v.Exists() {
		return "", false
	}
	return v.String(), true
}

// MarshalJSON embeds the record verbatim.
func (r ShareRecord) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON copies the raw JSON value into the record.
func (r *ShareRecord) UnmarshalJSON(data []byte) error {
	if r == nil {
		return errors.New("interfaces.ShareRecord: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// StorageKey addresses a share record in both stores. It is derived from the
// account public key and is stable per device and account.
type StorageKey = string

// LookupKeyFromPublicKey derives the storage key from a public key: the
// x-coordinate in lowercase hex without zero padding.
func LookupKeyFromPublicKey(pub *ecdsa.PublicKey) (StorageKey, error) {
	if pub == nil || pub.X == nil {
		return "", errors.New("missing public key")
	}
	return pub.X.Text(16), nil
}

// LookupKeyFromHex parses a hex-encoded secp256k1 public key, compressed (33
// bytes) or uncompressed (65 bytes), and derives its storage key.
func LookupKeyFromHex(pubHex string) (StorageKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(pubHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid hex format: %w", err)
	}

	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	case 65:
		pub, err = crypto.UnmarshalPubkey(raw)
	default:
		return "", fmt.Errorf("invalid public key length: %d bytes", len(raw))
	}
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}

	return LookupKeyFromPublicKey(pub)
}
