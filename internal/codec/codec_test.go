package codec

import (
	"testing"
)

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	c := JSON{}
	data, err := c.Encode(payload{Name: "x", Count: 3})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var out payload
	if err := c.Decode(data, &out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Name != "x" || out.Count != 3 {
		t.Errorf("round trip = %+v", out)
	}
}

func TestRawPassThrough(t *testing.T) {
	c := Raw{}

	data, err := c.Encode("hello")
	if err != nil {
		t.Fatalf("Encode(string) error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Encode(string) = %q", data)
	}

	var s string
	if err := c.Decode([]byte("world"), &s); err != nil {
		t.Fatalf("Decode(*string) error = %v", err)
	}
	if s != "world" {
		t.Errorf("Decode(*string) = %q", s)
	}

	if _, err := c.Encode(42); err == nil {
		t.Error("Encode(int) must fail")
	}
	var n int
	if err := c.Decode([]byte("1"), &n); err == nil {
		t.Error("Decode(*int) must fail")
	}
}
