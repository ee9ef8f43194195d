package sqlstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/graph"
)

// Attribute kinds stored next to each value so reads restore the Go type.
const (
	kindString = "string"
	kindInt    = "int"
	kindFloat  = "float"
	kindBool   = "bool"
	kindDate   = "date"
	kindNull   = "null"
	kindJSON   = "json"
)

func encodeValue(v any) (kind, value string, err error) {
	switch t := graph.CoerceValue(v).(type) {
	case nil:
		return kindNull, "", nil
	case string:
		return kindString, t, nil
	case int64:
		return kindInt, strconv.FormatInt(t, 10), nil
	case float64:
		return kindFloat, strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return kindBool, strconv.FormatBool(t), nil
	case time.Time:
		return kindDate, t.Format(time.DateOnly), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", "", fmt.Errorf("encode attribute: %w", err)
		}
		return kindJSON, string(b), nil
	}
}

func decodeValue(kind, value string) (any, error) {
	switch kind {
	case kindNull:
		return nil, nil
	case kindString:
		return value, nil
	case kindInt:
		return strconv.ParseInt(value, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(value, 64)
	case kindBool:
		return strconv.ParseBool(value)
	case kindDate:
		return time.Parse(time.DateOnly, value)
	case kindJSON:
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown attribute kind %q", kind)
	}
}
