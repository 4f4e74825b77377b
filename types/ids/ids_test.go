package ids

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase58RoundTrip(t *testing.T) {
	pk := MustFromBase58("4wcEn4cPenW3GM1eYfNoAHsmnN1SPNLnLqSCtBruaobD")
	assert.Equal(t, "4wcEn4cPenW3GM1eYfNoAHsmnN1SPNLnLqSCtBruaobD", pk.String())

	again, err := FromHex(pk.Hex())
	require.NoError(t, err)
	assert.Equal(t, pk, again)
}

func TestZeroKeyEncodesAsOnes(t *testing.T) {
	// base58 encodes each leading zero byte as '1'
	assert.Equal(t, "11111111111111111111111111111111", Empty.String())
	assert.True(t, Empty.IsZero())
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	assert.Error(t, err)

	_, err = FromBase58("3mJr7AoUXx2Wqd") // decodes, but far too short
	assert.Error(t, err)

	_, err = FromBase58("0OIl") // not in the alphabet
	assert.Error(t, err)
}

func TestJSONUsesBase58(t *testing.T) {
	pk := NewID([]byte("admin"))
	out, err := json.Marshal(struct {
		Admin Pubkey `json:"admin"`
	}{pk})
	require.NoError(t, err)
	assert.JSONEq(t, `{"admin":"`+pk.String()+`"}`, string(out))

	var back struct {
		Admin Pubkey `json:"admin"`
	}
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, pk, back.Admin)
}
