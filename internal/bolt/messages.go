// Package bolt implements the connection-level state machine of the wire
// protocol: handshake, message encoding per protocol version, the observer
// queue that demultiplexes pipelined responses, and failure/acknowledgement
// handling.
package bolt

import "github.com/graphwire/bolt-go-driver/packstream"

// Message is a value structure whose signature identifies the request or
// response kind and whose fields are its operands — exactly the wire
// grammar's tagged struct, reused directly rather than wrapped again.
type Message = packstream.Struct

// Request signatures.
const (
	SigInit       byte = 0x01 // V1 only
	SigHello      byte = 0x01 // V3+ (hello shares init's signature)
	SigGoodbye    byte = 0x02
	SigAckFailure byte = 0x0E // pre-V3
	SigBegin      byte = 0x0E // V3+ (begin shares ack_failure's signature)
	SigReset      byte = 0x0F
	SigRun        byte = 0x10
	SigDiscard    byte = 0x11 // V4+, parameterised
	SigDiscardAll byte = 0x2F // V1-V3
	SigPullAll    byte = 0x3F // V1-V3
	SigPull       byte = 0x3F // V4+, parameterised (shares pull_all's signature)
	SigCommit     byte = 0x12
	SigRollback   byte = 0x13
	SigRoute      byte = 0x66 // V4.3+
)

// Response signatures.
const (
	SigSuccess byte = 0x70
	SigRecord  byte = 0x71
	SigIgnored byte = 0x7E
	SigFailure byte = 0x7F
)

// Graph structure signatures, passed through the codec opaquely: this
// module never materialises typed Node/Relationship/Path values, but a
// caller-supplied struct mapper can be registered against these.
const (
	SigNode                byte = 0x4E
	SigRelationship        byte = 0x52
	SigUnboundRelationship byte = 0x72
	SigPath                byte = 0x50
)

func NewMessage(signature byte, fields ...any) *Message {
	return &Message{Signature: signature, Fields: fields}
}
