package slcan

import (
	"bytes"
	"testing"

	"github.com/kstaniek/go-gd32can/can"
)

func f(id uint32, ext bool, data ...byte) can.Message {
	var m can.Message
	m.ID = id
	m.Extended = ext
	m.Len = uint8(len(data))
	copy(m.Data[:], data)
	return m
}

func TestCodec_Encode(t *testing.T) {
	codec := Codec{}
	tests := []struct {
		name string
		msg  can.Message
		want string
	}{
		{"std data", f(0x123, false, 0xDE, 0xAD), "t1232DEAD\r"},
		{"std empty", f(0x7FF, false), "t7FF0\r"},
		{"ext data", f(0x1ABCDEF0, true, 0x01), "T1ABCDEF0101\r"},
		{"std remote", can.Message{ID: 0x456, RTR: true, Len: 4}, "r4564\r"},
		{"ext remote", can.Message{ID: 0x1FFFFFFF, Extended: true, RTR: true, Len: 0}, "R1FFFFFFF0\r"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(codec.Encode(tc.msg)); got != tc.want {
				t.Fatalf("Encode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCodec_RoundTrip_Chunked(t *testing.T) {
	codec := Codec{}
	want := []can.Message{
		f(0x1E5A, true, 0x34, 0x7B, 0x70, 0xD7, 0x94, 0x10, 0x0D, 0xF7),
		f(0x7DF, false, 0x02, 0x01, 0x0C),
		{ID: 0x600, RTR: true, Len: 8},
		f(0x1ABCDEF0, true, 0x9A, 0xBC),
	}
	stream := make([]byte, 0, 128)
	for _, m := range want {
		stream = append(stream, codec.Encode(m)...)
	}

	var buf bytes.Buffer
	var got []can.Message
	// Feed in irregular small chunks to stress partial-line buffering.
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		buf.Write(stream[pos : pos+n])
		pos += n
		if err := codec.DecodeStream(&buf, func(m can.Message) { got = append(got, m) }); err != nil {
			t.Fatalf("DecodeStream error: %v", err)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Extended != w.Extended || g.RTR != w.RTR || g.Len != w.Len {
			t.Fatalf("frame %d header mismatch: got %+v want %+v", i, g, w)
		}
		if !w.RTR && !bytes.Equal(g.Data[:g.Len], w.Data[:w.Len]) {
			t.Fatalf("frame %d payload mismatch: % X vs % X", i, g.Data[:g.Len], w.Data[:w.Len])
		}
	}
}

func TestDecodeStream_IgnoresAcksAndTimestamps(t *testing.T) {
	codec := Codec{}
	var buf bytes.Buffer
	// transmit ack, version reply, frame with 4-digit adapter timestamp
	buf.WriteString("z\rV1013\rt10021122ABCD\r")
	var got []can.Message
	if err := codec.DecodeStream(&buf, func(m can.Message) { got = append(got, m) }); err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(got))
	}
	if got[0].ID != 0x100 || got[0].Len != 2 || got[0].Data[0] != 0x11 || got[0].Data[1] != 0x22 {
		t.Fatalf("unexpected frame %+v", got[0])
	}
}

func TestDecodeStream_StatusCallback(t *testing.T) {
	var seen []Status
	codec := Codec{OnStatus: func(s Status) { seen = append(seen, s) }}
	var buf bytes.Buffer
	buf.WriteString("F04\r")
	if err := codec.DecodeStream(&buf, func(can.Message) {}); err != nil {
		t.Fatalf("DecodeStream error: %v", err)
	}
	if len(seen) != 1 || seen[0] != StatusErrorWarning {
		t.Fatalf("status callback got %v, want [ErrorWarning]", seen)
	}
}

func TestSetupCommand(t *testing.T) {
	tests := []struct {
		rate can.Bitrate
		want string
	}{
		{can.Rate10k, "S0\r"},
		{can.Rate125k, "S4\r"},
		{can.Rate500k, "S6\r"},
		{can.Rate1M, "S8\r"},
	}
	for _, tc := range tests {
		got, err := SetupCommand(tc.rate)
		if err != nil {
			t.Fatalf("SetupCommand(%d): %v", tc.rate, err)
		}
		if string(got) != tc.want {
			t.Fatalf("SetupCommand(%d) = %q, want %q", tc.rate, got, tc.want)
		}
	}
	if _, err := SetupCommand(can.Rate83k3); err == nil {
		t.Fatal("expected ErrUnsupportedRate for 83k3")
	}
}
