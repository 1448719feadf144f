package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	out, err := Marshal(map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zulu":1}`, string(out))
}

func TestMarshal_PermutationInvariance(t *testing.T) {
	// Build the same logical map twice with different insertion orders.
	a := map[string]any{}
	for _, k := range []string{"x", "a", "m", "b"} {
		a[k] = k + "-value"
	}
	b := map[string]any{}
	for _, k := range []string{"b", "m", "a", "x"} {
		b[k] = k + "-value"
	}

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)
}

func TestMarshal_StructsAndMapsAgree(t *testing.T) {
	type payload struct {
		MaterialID string `json:"material_id"`
		Result     string `json:"result"`
		Passed     bool   `json:"passed"`
	}

	fromStruct, err := Marshal(payload{MaterialID: "bio:cell_line:1", Result: "negative", Passed: true})
	require.NoError(t, err)

	fromMap, err := Marshal(map[string]any{
		"result":      "negative",
		"passed":      true,
		"material_id": "bio:cell_line:1",
	})
	require.NoError(t, err)

	assert.Equal(t, fromStruct, fromMap)
}

func TestMarshal_Literals(t *testing.T) {
	out, err := Marshal(map[string]any{"n": nil, "t": true, "f": false, "arr": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[1,2,3],"f":false,"n":null,"t":true}`, string(out))
}

func TestMarshal_NumberNormalization(t *testing.T) {
	out, err := Marshal(map[string]any{"i": int64(1700000000), "f": 0.5})
	require.NoError(t, err)
	assert.Equal(t, `{"f":0.5,"i":1700000000}`, string(out))
}

func TestMarshal_StringEscaping(t *testing.T) {
	out, err := Marshal("line1\nline2\ttab \"quoted\" back\\slash \x01")
	require.NoError(t, err)
	assert.Equal(t, `"line1\nline2\ttab \"quoted\" back\\slash \u0001"`, string(out))
}

func TestMarshal_UTF8Verbatim(t *testing.T) {
	out, err := Marshal("héla-zellen ü")
	require.NoError(t, err)
	assert.Equal(t, `"héla-zellen ü"`, string(out))
}

func TestMarshal_RejectsNonFinite(t *testing.T) {
	_, err := Marshal(map[string]any{"bad": math.Inf(1)})
	assert.ErrorIs(t, err, ErrNonSerializable)

	_, err = Marshal(math.NaN())
	assert.ErrorIs(t, err, ErrNonSerializable)
}

func TestMarshal_RejectsCycles(t *testing.T) {
	cycle := map[string]any{}
	cycle["self"] = cycle
	_, err := Marshal(cycle)
	assert.ErrorIs(t, err, ErrNonSerializable)
}

func TestMarshal_RejectsNonJSONTypes(t *testing.T) {
	_, err := Marshal(map[string]any{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrNonSerializable)
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1.Hex(), "0x0000000000000000000000000000000000000000000000000000000000000000")
}

func TestHash_RoundTrip(t *testing.T) {
	// hash(parse(canonicalize(x))) == hash(x) for values in the canonical
	// JSON subset.
	original := map[string]any{
		"material": "bio:plasmid:7",
		"qc": map[string]any{
			"result": "negative",
			"lot":    42,
		},
		"tags": []any{"myco", "batch-3"},
	}

	canon, err := Marshal(original)
	require.NoError(t, err)

	reparsed, err := Marshal(mustParse(t, canon))
	require.NoError(t, err)
	assert.Equal(t, canon, reparsed)

	h1, err := Hash(original)
	require.NoError(t, err)
	h2 := HashBytes(reparsed)
	assert.Equal(t, h1, h2)
}

func mustParse(t *testing.T, data []byte) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}
