package link

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []Frame{
		DataFrame{Payload: []byte("hello")},
		DataFrame{Payload: nil},
		ConnectionRequestFrame{},
		ConnectionCloseFrame{Reason: "Timedout"},
		ConnectionCloseFrame{Reason: ""},
		ConnectionConfirmFrame{ID: 0x7f000001},
		PasswordRequestFrame{},
		PasswordFrame{Secret: "hunter2"},
	}

	for _, want := range cases {
		datagram, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", want, err)
		}

		got, err := Decode(datagram)
		if err != nil {
			t.Fatalf("Decode after Encode(%#v): %v", want, err)
		}

		if got.Tag() != want.Tag() {
			t.Fatalf("tag mismatch: got %v, want %v", got.Tag(), want.Tag())
		}

		switch w := want.(type) {
		case DataFrame:
			g := got.(DataFrame)
			if !bytes.Equal(g.Payload, w.Payload) && len(g.Payload)+len(w.Payload) != 0 {
				t.Fatalf("DataFrame payload mismatch: got %v, want %v", g.Payload, w.Payload)
			}
		case ConnectionCloseFrame:
			if got.(ConnectionCloseFrame).Reason != w.Reason {
				t.Fatalf("reason mismatch: got %q, want %q", got.(ConnectionCloseFrame).Reason, w.Reason)
			}
		case ConnectionConfirmFrame:
			if got.(ConnectionConfirmFrame).ID != w.ID {
				t.Fatalf("id mismatch: got %d, want %d", got.(ConnectionConfirmFrame).ID, w.ID)
			}
		case PasswordFrame:
			if got.(PasswordFrame).Secret != w.Secret {
				t.Fatalf("secret mismatch: got %q, want %q", got.(PasswordFrame).Secret, w.Secret)
			}
		}
	}
}

func TestDecodeUnknownTagIsNotAnError(t *testing.T) {
	datagram := []byte{0xaa, 1, 2, 3}
	frame, err := Decode(datagram)
	if err != nil {
		t.Fatalf("unexpected error for unknown tag: %v", err)
	}
	uf, ok := frame.(UnknownFrame)
	if !ok {
		t.Fatalf("expected UnknownFrame, got %T", frame)
	}
	if !bytes.Equal(uf.Raw, datagram) {
		t.Fatalf("UnknownFrame.Raw mismatch: got %v, want %v", uf.Raw, datagram)
	}
}

func TestDecodeTruncatedBodyIsMalformed(t *testing.T) {
	// TagConnectionConfirm needs 4 trailing bytes; give it one.
	datagram := []byte{byte(TagConnectionConfirm), 0x01}
	if _, err := Decode(datagram); err == nil {
		t.Fatalf("expected error decoding truncated ConnectionConfirm body")
	}

	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error decoding empty datagram")
	}
}

func TestEncodeNestedRoundTrip(t *testing.T) {
	inner := []byte("nested packet contents")
	buf := EncodeNested(inner)
	buf = append(buf, []byte("trailing")...)

	got, rest, err := DecodeNested(buf)
	if err != nil {
		t.Fatalf("DecodeNested: %v", err)
	}
	if !bytes.Equal(got, inner) {
		t.Fatalf("inner mismatch: got %v, want %v", got, inner)
	}
	if !bytes.Equal(rest, []byte("trailing")) {
		t.Fatalf("rest mismatch: got %v", rest)
	}
}

func TestDecodeNestedTruncated(t *testing.T) {
	if _, _, err := DecodeNested([]byte{0, 0, 0, 0, 0, 0, 0, 5, 1, 2}); err == nil {
		t.Fatalf("expected error for declared length exceeding buffer")
	}
	if _, _, err := DecodeNested([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for buffer shorter than length prefix")
	}
}
