package wire

import "testing"

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := Message{Type: TransactionAnnouncementMsg, Payload: []byte{1, 2, 3}}
	got, err := DecodeMessage(msg.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Type != msg.Type {
		t.Fatalf("Type = %v, want %v", got.Type, msg.Type)
	}
	if string(got.Payload) != string(msg.Payload) {
		t.Fatalf("Payload = %v, want %v", got.Payload, msg.Payload)
	}
}

// TestMessageTypeWireValues pins the literal byte values the envelope's
// one-byte tag must carry: a fabric peer decoding these bytes is never
// running this package's source, only its wire contract.
func TestMessageTypeWireValues(t *testing.T) {
	cases := map[MessageType]byte{
		FinalBlockMsg:              0,
		ProposalBlockMsg:           1,
		TransactionAnnouncementMsg: 2,
		ValidationMsg:              3,
		RequestBlockMsg:            4,
		GetBlocksSinceMsg:          5,
		BlocksSinceMsg:             6,
	}
	for typ, want := range cases {
		if byte(typ) != want {
			t.Errorf("%s = %d, want %d", typ, byte(typ), want)
		}
	}
}

func TestDecodeMessageRejectsEmpty(t *testing.T) {
	if _, err := DecodeMessage(nil); err == nil {
		t.Fatal("expected an error decoding an empty message")
	}
}

func TestDecodeMessageRejectsUnknownType(t *testing.T) {
	if _, err := DecodeMessage([]byte{0xFF}); err == nil {
		t.Fatal("expected an error decoding an unknown message type")
	}
}
