package types

import "encoding/json"

// FloatPtr returns a pointer to the given float64.
func FloatPtr(f float64) *float64 {
	return &f
}

// IntPtr returns a pointer to the given int.
func IntPtr(i int) *int {
	return &i
}

// MustRawMessage marshals a ChatMessage into raw JSON. Marshaling two string
// fields cannot fail.
func MustRawMessage(msg ChatMessage) json.RawMessage {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}
