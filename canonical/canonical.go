// Package canonical implements the deterministic JSON serialization and
// SHA-256 commitment scheme used for credential payloads and history entries.
//
// Canonical form: object keys sorted lexicographically by UTF-8 code units,
// no whitespace, arrays in order, literals for null/true/false, strings in
// UTF-8 with minimal escaping, numbers without redundant zeros. Structurally
// equal inputs produce byte-identical output under any insertion order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNonSerializable is returned for values outside the canonical JSON
// subset: non-finite numbers, cyclic structures, or unsupported Go types.
var ErrNonSerializable = errors.New("value is not canonically serializable")

// Marshal returns the canonical JSON byte string for a value.
func Marshal(v any) ([]byte, error) {
	// The stdlib marshal pass rejects cycles, NaN/Inf and non-JSON types,
	// and applies struct tags, so the canonical writer only ever sees the
	// plain JSON data model.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonSerializable, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonSerializable, err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the SHA-256 commitment over the canonical form of a value.
func Hash(v any) (common.Hash, error) {
	data, err := Marshal(v)
	if err != nil {
		return common.Hash{}, err
	}
	return HashBytes(data), nil
}

// HashBytes returns the SHA-256 digest of raw bytes as a common.Hash.
func HashBytes(data []byte) common.Hash {
	return common.Hash(sha256.Sum256(data))
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeNumber(buf, val)
	case string:
		writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unexpected type %T", ErrNonSerializable, v)
	}
	return nil
}

// writeNumber normalizes a JSON number: integers in plain decimal, other
// finite numbers in Go's shortest round-trip form.
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("%w: number %q", ErrNonSerializable, n.String())
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString emits a JSON string with minimal escaping. Input is taken
// verbatim as UTF-8; no unicode normalization is applied.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
}
