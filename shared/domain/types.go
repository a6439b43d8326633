package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is a server identifier. The backend is not consistent about sending ids
// as JSON strings or numbers, so both decode to the same string form and ids
// are always compared as strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int64 is a convenience for numeric ids; it returns 0 for non-numeric ones.
func (id ID) Int64() int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}
