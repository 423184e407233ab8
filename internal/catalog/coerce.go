package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Warning records a value that could not be coerced to its declared type.
// Coercion is deliberately forgiving: attributes are defined at runtime by
// operators, so malformed historical rows must not fail a whole read.
type Warning struct {
	Attribute string `json:"attribute"`
	Raw       string `json:"raw"`
	Message   string `json:"message"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a raw stored value to the typed representation implied by
// the attribute type. It never returns an error: failures yield a nil value
// and a non-nil Warning, and the caller keeps the rest of the record.
func Coerce(attr *Attribute, raw any) (any, *Warning) {
	if raw == nil {
		return nil, nil
	}

	switch attr.Type {
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, warn(attr, v, "not a number")
			}
			return f, nil
		}
		return nil, warn(attr, fmt.Sprintf("%v", raw), "not a number")

	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, warn(attr, v, "not a boolean")
		}
		return nil, warn(attr, fmt.Sprintf("%v", raw), "not a boolean")

	case TypeDate:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t, nil
				}
			}
			return nil, warn(attr, v, "not a date")
		}
		return nil, warn(attr, fmt.Sprintf("%v", raw), "not a date")

	case TypeMultiSelect:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case string:
			trimmed := strings.TrimSpace(v)
			if strings.HasPrefix(trimmed, "[") {
				var items []any
				if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
					return nil, warn(attr, v, "not a JSON array")
				}
				out := make([]string, len(items))
				for i, item := range items {
					out[i] = fmt.Sprintf("%v", item)
				}
				return out, nil
			}
			// Older rows stored a bare scalar; wrap it for compatibility.
			return []string{v}, nil
		}
		return nil, warn(attr, fmt.Sprintf("%v", raw), "not a JSON array")

	case TypeJSON:
		switch v := raw.(type) {
		case string:
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err != nil {
				return nil, warn(attr, v, "invalid JSON")
			}
			return parsed, nil
		default:
			// Already structured (e.g. decoded upstream).
			return v, nil
		}

	default:
		// TEXT, TEXTAREA, EMAIL, PHONE, URL, SELECT, ATTACHMENT: pass-through.
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	}
}

func warn(attr *Attribute, raw, msg string) *Warning {
	return &Warning{Attribute: attr.Name, Raw: raw, Message: msg}
}

// Encode converts a caller-supplied value into the text form stored in the
// value table. Strings are stored as given; typed values are formatted.
// Values column is always text on disk, so reads go back through Coerce.
func Encode(attr *Attribute, v any) (string, error) {
	if v == nil {
		return "", nil
	}

	switch attr.Type {
	case TypeNumber:
		switch n := v.(type) {
		case string:
			return n, nil
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(n), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case json.Number:
			return n.String(), nil
		}

	case TypeBoolean:
		switch b := v.(type) {
		case string:
			return b, nil
		case bool:
			return strconv.FormatBool(b), nil
		}

	case TypeDate:
		switch t := v.(type) {
		case string:
			return t, nil
		case time.Time:
			return t.Format(time.RFC3339), nil
		}

	case TypeMultiSelect:
		switch m := v.(type) {
		case string:
			return m, nil
		case []string, []any:
			b, err := json.Marshal(m)
			if err != nil {
				return "", fmt.Errorf("encode %s: %w", attr.Name, err)
			}
			return string(b), nil
		}

	case TypeJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", attr.Name, err)
		}
		return string(b), nil

	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(s), nil
		}
	}

	return "", fmt.Errorf("cannot store %T as %s value for attribute %s", v, attr.Type, attr.Name)
}
