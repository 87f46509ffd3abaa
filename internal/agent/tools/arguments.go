package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type argKind int

const (
	argString argKind = iota
	argInt
	argFloat
)

var argSchemas = map[ToolName]map[string]argKind{
	ToolCheckInventory:     {"item_name": argString},
	ToolCalculateDiscount:  {"price": argFloat, "quantity": argInt},
	ToolRecommendCrossSell: {"product_name": argString},
	ToolPlaceOrder:         {"product_id": argString, "product_name": argString, "quantity": argInt, "unit_price": argFloat},
}

// SanitizeArguments coerces model-produced arguments to the types a tool declares:
// strings are trimmed, numeric strings become numbers, unknown keys are dropped.
// Values that cannot be coerced are left for the tool to reject. Arguments that
// are not a JSON object become "{}".
func SanitizeArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		return "{}"
	}
	fields, ok := argSchemas[ToolName(name)]
	if !ok {
		return arguments
	}

	out := make(map[string]any, len(fields))
	for key, kind := range fields {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch kind {
		case argString:
			switch vv := v.(type) {
			case string:
				out[key] = strings.TrimSpace(vv)
			default:
				out[key] = strings.TrimSpace(fmt.Sprint(vv))
			}
		case argInt:
			if f, ok := toNumber(v); ok && f == math.Trunc(f) {
				out[key] = int64(f)
			} else {
				out[key] = v
			}
		case argFloat:
			if f, ok := toNumber(v); ok {
				out[key] = f
			} else {
				out[key] = v
			}
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return arguments
	}
	return string(b)
}

func toNumber(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case string:
		s := strings.TrimSpace(vv)
		s = strings.TrimLeft(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
