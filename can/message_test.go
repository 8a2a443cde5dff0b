package can

import (
	"errors"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want error
	}{
		{"std ok", Message{ID: 0x7FF, Len: 8}, nil},
		{"std id too big", Message{ID: 0x800}, ErrInvalidID},
		{"ext ok", Message{ID: 0x1FFFFFFF, Extended: true}, nil},
		{"ext id too big", Message{ID: 0x20000000, Extended: true}, ErrInvalidID},
		{"len too big", Message{ID: 1, Len: 9}, ErrInvalidLen},
		{"rtr ok", Message{ID: 0x123, RTR: true, Len: 0}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.msg.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMessagePayload(t *testing.T) {
	m := Message{ID: 0x100, Len: 3, Data: [8]byte{1, 2, 3, 4}}
	p := m.Payload()
	if len(p) != 3 || p[0] != 1 || p[2] != 3 {
		t.Fatalf("Payload() = %v, want first 3 bytes", p)
	}
	m.Len = 12 // corrupt length must clamp, not panic
	if got := len(m.Payload()); got != 8 {
		t.Fatalf("clamped payload length = %d, want 8", got)
	}
}
