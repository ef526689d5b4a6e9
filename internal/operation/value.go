package operation

import (
	"strings"

	"github.com/dreamware/varstore/internal/document"
)

// ParseValue turns an incoming set value into a document value.
//
// Text whose trimmed form starts with '{' or '[' is parsed as JSON; if it
// parses, the structure is stored, otherwise the text is kept verbatim.
// Any other text is stored as a string without a parse attempt. Non-text
// values are converted as they are.
func ParseValue(v any) (document.Value, error) {
	var text string
	switch t := v.(type) {
	case string:
		text = t
	case document.String:
		text = string(t)
	default:
		return document.FromAny(v)
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if parsed, err := document.Unmarshal([]byte(text)); err == nil {
			return parsed, nil
		}
	}
	return document.String(text), nil
}
