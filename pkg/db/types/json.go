package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONValue encodes v for a json/jsonb column.
func JSONValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// ScanJSON decodes a json/jsonb column into dst. NULL leaves dst untouched.
func ScanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json scan type %T", src)
	}
}
