package index

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    []string
		corrupt bool
	}{
		{"empty", "", nil, false},
		{"null", " null ", nil, false},
		{"empty array", "[]", nil, false},
		{"sorted", `[{"prompt":"old","requestId":"1","timestamp":1},{"prompt":"new","requestId":"2","timestamp":2}]`, []string{"new", "old"}, false},
		{"object", `{"prompt":"x"}`, nil, true},
		{"garbage", `not json`, nil, true},
		{"wrong field type", `[{"prompt":"x","timestamp":"yesterday"}]`, nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Decode([]byte(c.in))
			if c.corrupt {
				if !errors.Is(err, ErrCorrupt) {
					t.Fatalf("expected ErrCorrupt, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got == nil {
				t.Fatal("Decode returned nil slice")
			}
			if len(got) != len(c.want) {
				t.Fatalf("got %d records, want %d", len(got), len(c.want))
			}
			for i, p := range c.want {
				if got[i].Prompt != p {
					t.Fatalf("record %d = %q, want %q", i, got[i].Prompt, p)
				}
			}
		})
	}
}

func TestEncodeWireNames(t *testing.T) {
	data, err := Encode([]Record{{Prompt: "p", RequestID: "r", Timestamp: 5}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[{"prompt":"p","requestId":"r","timestamp":5}]` {
		t.Fatalf("encoded %s", data)
	}
	data, _ = Encode(nil)
	if string(data) != "[]" {
		t.Fatalf("nil encoded as %s", data)
	}
}
