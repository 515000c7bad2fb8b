package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCandidates_Float(t *testing.T) {
	cands := encodeCandidates(3.5)
	require.Len(t, cands, 3)
	assert.Equal(t, "3.5", string(cands[0]))
	assert.Equal(t, "3.500", string(cands[1]))
	assert.JSONEq(t, `{"value":3.5}`, string(cands[2]))
}

func TestEncodeCandidates_Bool(t *testing.T) {
	cands := encodeCandidates(true)
	require.Len(t, cands, 3)
	assert.Equal(t, "1", string(cands[0]))
	assert.Equal(t, "true", string(cands[1]))
	assert.JSONEq(t, `{"value":true}`, string(cands[2]))

	cands = encodeCandidates(false)
	assert.Equal(t, "0", string(cands[0]))
}

func TestEncodeCandidates_String(t *testing.T) {
	cands := encodeCandidates("charge")
	require.Len(t, cands, 2)
	assert.Equal(t, "charge", string(cands[0]))
	assert.JSONEq(t, `{"value":"charge"}`, string(cands[1]))
}

func TestEncodeCandidates_Int(t *testing.T) {
	cands := encodeCandidates(42)
	require.Len(t, cands, 2)
	assert.Equal(t, "42", string(cands[0]))
}

func TestEncodeCandidates_FallbackJSON(t *testing.T) {
	cands := encodeCandidates(struct {
		A int `json:"a"`
	}{A: 1})
	require.Len(t, cands, 1)
	assert.JSONEq(t, `{"a":1}`, string(cands[0]))
}
