package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeCompletion reads the data field of a predict response. The remote
// side returns either a bare value or a sequence whose first element is the
// translation. Strings pass through, other non-null scalars and objects are
// rendered as text, and null, absent or empty data decode to "".
func DecodeCompletion(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return "", nil
		}
		v = list[0]
	}

	switch out := v.(type) {
	case nil:
		return "", nil
	case string:
		return out, nil
	case json.Number:
		return out.String(), nil
	case bool:
		if out {
			return "true", nil
		}
		return "false", nil
	default:
		b, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return string(b), nil
	}
}
