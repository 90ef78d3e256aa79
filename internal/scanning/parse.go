package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// ParseLineItems pulls the JSON list out of a model response. The span from
// the first '[' to the last ']' is decoded, so commentary or markdown fences
// around it are tolerated. Elements that are not objects become empty
// lines rather than failing the list; the resolver prices those at zero
// under the Unknown name.
//
// A response without a decodable list returns ErrNoItems. An empty list is
// returned as an empty slice with no error.
func ParseLineItems(text string) ([]pricing.RawLineItem, error) {
	start := strings.Index(text, "[")
	if start == -1 {
		return nil, fmt.Errorf("%w: no JSON list in response", ErrNoItems)
	}
	end := strings.LastIndex(text, "]")
	if end < start {
		return nil, fmt.Errorf("%w: unterminated JSON list in response", ErrNoItems)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &elements); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrNoItems, err)
	}

	return pricing.DecodeLineItems(elements), nil
}
