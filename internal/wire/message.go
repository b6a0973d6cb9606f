package wire

import (
	dvErrors "devv.io/node/pkg/errors"
)

// MessageType identifies a DevvMessage's payload kind (spec.md #2, #5;
// original_source/src/DevcashMessage.h's eMessageType, extended with the
// internetwork catch-up types spec.md #5 adds).
type MessageType uint8

const (
	FinalBlockMsg MessageType = iota
	ProposalBlockMsg
	TransactionAnnouncementMsg
	ValidationMsg
	RequestBlockMsg
	GetBlocksSinceMsg
	BlocksSinceMsg
	numMessageTypes
)

func (t MessageType) String() string {
	switch t {
	case FinalBlockMsg:
		return "FINAL_BLOCK"
	case ProposalBlockMsg:
		return "PROPOSAL_BLOCK"
	case TransactionAnnouncementMsg:
		return "TRANSACTION_ANNOUNCEMENT"
	case ValidationMsg:
		return "VALIDATION"
	case RequestBlockMsg:
		return "REQUEST_BLOCK"
	case GetBlocksSinceMsg:
		return "GET_BLOCKS_SINCE"
	case BlocksSinceMsg:
		return "BLOCKS_SINCE"
	default:
		return "UNKNOWN"
	}
}

// Message is the self-delimiting envelope exchanged between nodes (spec.md
// #2): a one-byte message_type tag followed by the type-specific payload.
// URI and trace id are transport-adjacent concerns carried alongside the
// wire bytes by internal/fabric, not part of this encoding (spec.md #1:
// transport is an external collaborator).
type Message struct {
	Type    MessageType
	Payload []byte
}

// Encode prepends the one-byte message_type tag to the payload, per
// original_source's serialize() free function.
func (m Message) Encode() []byte {
	out := make([]byte, 0, 1+len(m.Payload))
	out = append(out, byte(m.Type))
	out = append(out, m.Payload...)
	return out
}

// DecodeMessage strips the one-byte message_type tag and validates it is
// known, per original_source's deserialize() free function.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < 1 {
		return Message{}, dvErrors.NewDeserializationError("empty message")
	}
	t := MessageType(b[0])
	if t >= numMessageTypes {
		return Message{}, dvErrors.NewDeserializationError("unknown message type")
	}
	return Message{Type: t, Payload: b[1:]}, nil
}
