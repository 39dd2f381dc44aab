// Package codec defines the payload encoding boundary of the transport.
// The transport itself trades only in opaque byte strings; codecs turn
// application values into payloads and back.
package codec

import "encoding/json"

// Codec encodes values into wire payloads and decodes payloads into
// values.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is a Codec backed by encoding/json.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Raw passes payloads through unchanged. Encode accepts []byte or string;
// Decode fills a *[]byte or *string.
type Raw struct{}

func (Raw) Encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	}
	return nil, errUnsupported
}

func (Raw) Decode(data []byte, v any) error {
	switch p := v.(type) {
	case *[]byte:
		*p = data
		return nil
	case *string:
		*p = string(data)
		return nil
	}
	return errUnsupported
}
