package interfaces

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareRecord_Fields(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expectedIndex string
		hasIndex      bool
		expectedPoly  string
		hasPoly       bool
	}{
		{
			name:          "nested share",
			text:          `{"share":{"share":"aa","shareIndex":"3"},"polynomialID":"p1"}`,
			expectedIndex: "3", hasIndex: true,
			expectedPoly: "p1", hasPoly: true,
		},
		{
			name:          "top-level index",
			text:          `{"share":"aa","shareIndex":"c"}`,
			expectedIndex: "c", hasIndex: true,
		},
		{
			name: "no index",
			text: `{"share":"aa"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseShareRecord([]byte(tt.text))
			require.NoError(t, err)

			idx, ok := record.ShareIndex()
			assert.Equal(t, tt.hasIndex, ok)
			assert.Equal(t, tt.expectedIndex, idx)

			poly, ok := record.PolynomialID()
			assert.Equal(t, tt.hasPoly, ok)
			assert.Equal(t, tt.expectedPoly, poly)
		})
	}
}

func TestShareRecord_ParseAndCompact(t *testing.T) {
	_, err := ParseShareRecord([]byte("{nope"))
	assert.Error(t, err)

	src := []byte("{ \"a\" : [1, 2] }")
	record, err := ParseShareRecord(src)
	require.NoError(t, err)
	src[2] = 'X'
	assert.Equal(t, "{ \"a\" : [1, 2] }", string(record))

	compact, err := record.Compact()
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, string(compact))
	assert.True(t, record.Equal(ShareRecord(compact)))
	assert.False(t, record.Equal(ShareRecord(`{"a":[2,1]}`)))

	assert.Error(t, ShareRecord(nil).Validate())
	assert.NoError(t, record.Validate())
}

func TestShareRecord_JSONEmbedding(t *testing.T) {
	type envelope struct {
		Record ShareRecord `json:"record"`
	}

	data, err := json.Marshal(envelope{Record: ShareRecord(`{"x":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"record":{"x":1}}`, string(data))

	var out envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.JSONEq(t, `{"x":1}`, string(out.Record))
}

func TestLookupKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	expected := key.PublicKey.X.Text(16)

	fromKey, err := LookupKeyFromPublicKey(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, expected, fromKey)

	compressed := hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey))
	fromCompressed, err := LookupKeyFromHex(compressed)
	require.NoError(t, err)
	assert.Equal(t, expected, fromCompressed)

	uncompressed := "0x" + hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey))
	fromUncompressed, err := LookupKeyFromHex(uncompressed)
	require.NoError(t, err)
	assert.Equal(t, expected, fromUncompressed)

	_, err = LookupKeyFromHex("zz")
	assert.Error(t, err)
	_, err = LookupKeyFromHex("0102")
	assert.Error(t, err)
	_, err = LookupKeyFromPublicKey(nil)
	assert.Error(t, err)
}

func TestStoreLocation(t *testing.T) {
	loc, err := NewStoreLocation("s3://AK:SK@bucket/prefix/?region=eu-west-1&quota=42&tls=yes")
	require.NoError(t, err)
	assert.Equal(t, "s3", loc.Scheme)
	assert.Equal(t, "bucket", loc.Host)
	assert.Equal(t, "/prefix/", loc.Path)
	assert.Equal(t, "eu-west-1", loc.GetParam("region"))
	assert.True(t, loc.GetParamBool("tls"))
	assert.False(t, loc.GetParamBool("insecure"))

	quota, err := loc.GetParamInt64("quota", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), quota)
	missing, err := loc.GetParamInt64("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), missing)

	require.NotNil(t, loc.Auth)
	assert.Equal(t, "AK", loc.Auth.Username())

	_, err = NewStoreLocation("ipfs://host")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
}
