package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// MessageID identifies the kind of a non-keep-alive message.
type MessageID byte

// The nine message ids of the peer wire protocol.
const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldID
	Request
	Piece
	Cancel
)

// MaxMessageSize bounds the length prefix we will accept, guarding against a
// malicious or corrupt peer claiming an unreasonable payload size.
const MaxMessageSize = 1 << 20 // 1 MiB: comfortably above a 16 KiB block plus header.

// Message is a single framed wire-protocol message. A zero-value Message
// with IsKeepAlive true carries no id or payload.
type Message struct {
	IsKeepAlive bool
	ID          MessageID
	// Index, Offset, Length are populated for Have/Request/Piece/Cancel.
	Index  int
	Offset int
	Length int
	// Bitfield is populated for BitfieldID.
	Bitfield []byte
	// Block is populated for Piece.
	Block []byte
}

// NewKeepAlive returns a keep-alive message (zero-length on the wire).
func NewKeepAlive() *Message { return &Message{IsKeepAlive: true} }

// NewChoke, NewUnchoke, NewInterested, NewNotInterested return the
// corresponding zero-payload message.
func NewChoke() *Message         { return &Message{ID: Choke} }
func NewUnchoke() *Message       { return &Message{ID: Unchoke} }
func NewInterested() *Message    { return &Message{ID: Interested} }
func NewNotInterested() *Message { return &Message{ID: NotInterested} }

// NewHave returns a HAVE message announcing possession of piece index.
func NewHave(index int) *Message {
	return &Message{ID: Have, Index: index}
}

// NewBitfield returns a BITFIELD message carrying the packed bits b.
func NewBitfield(b []byte) *Message {
	return &Message{ID: BitfieldID, Bitfield: b}
}

// NewRequest returns a REQUEST message for the given block.
func NewRequest(index, offset, length int) *Message {
	return &Message{ID: Request, Index: index, Offset: offset, Length: length}
}

// NewPiece returns a PIECE message delivering block bytes for (index, offset).
func NewPiece(index, offset int, block []byte) *Message {
	return &Message{ID: Piece, Index: index, Offset: offset, Block: block}
}

// NewCancel returns a CANCEL message for the given block.
func NewCancel(index, offset, length int) *Message {
	return &Message{ID: Cancel, Index: index, Offset: offset, Length: length}
}

func (m *Message) encode() []byte {
	if m.IsKeepAlive {
		return make([]byte, 4) // length prefix of zero, no payload.
	}

	var payload []byte
	switch m.ID {
	case Choke, Unchoke, Interested, NotInterested:
		payload = nil
	case Have:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(m.Index))
	case BitfieldID:
		payload = m.Bitfield
	case Request, Cancel:
		payload = make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], uint32(m.Index))
		binary.BigEndian.PutUint32(payload[4:8], uint32(m.Offset))
		binary.BigEndian.PutUint32(payload[8:12], uint32(m.Length))
	case Piece:
		payload = make([]byte, 8+len(m.Block))
		binary.BigEndian.PutUint32(payload[0:4], uint32(m.Index))
		binary.BigEndian.PutUint32(payload[4:8], uint32(m.Offset))
		copy(payload[8:], m.Block)
	}

	out := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(1+len(payload)))
	out[4] = byte(m.ID)
	copy(out[5:], payload)
	return out
}

// WriteMessage frames and writes msg to w.
func WriteMessage(w io.Writer, msg *Message) error {
	_, err := w.Write(msg.encode())
	if err != nil {
		return fmt.Errorf("write message: %s", err)
	}
	return nil
}

// WriteMessageTimeout frames and writes msg to nc, bounding the write by a
// deadline. The net package evaluates deadlines against the system clock,
// so this intentionally does not go through an injected clock abstraction.
func WriteMessageTimeout(nc net.Conn, msg *Message, timeout time.Duration) error {
	if err := nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	return WriteMessage(nc, msg)
}

// ReadMessage reads one framed message from r. Length zero decodes to a
// keep-alive. An unrecognized message id is skipped (its payload is read
// and discarded) rather than treated as a protocol error, preserving
// forward compatibility with extensions this implementation does not speak;
// ReadMessage returns (nil, nil) in that case so the caller loops again.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %s", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return NewKeepAlive(), nil
	}
	if length > MaxMessageSize {
		return nil, &ProtocolError{fmt.Sprintf("message length %d exceeds max %d", length, MaxMessageSize)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %s", err)
	}
	return decodePayload(MessageID(payload[0]), payload[1:])
}

// ReadMessageTimeout is ReadMessage bounded by a read deadline.
func ReadMessageTimeout(nc net.Conn, timeout time.Duration) (*Message, error) {
	if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	return ReadMessage(nc)
}

func decodePayload(id MessageID, body []byte) (*Message, error) {
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		return &Message{ID: id}, nil
	case Have:
		if len(body) != 4 {
			return nil, &ProtocolError{"malformed have payload"}
		}
		return &Message{ID: id, Index: int(binary.BigEndian.Uint32(body))}, nil
	case BitfieldID:
		return &Message{ID: id, Bitfield: body}, nil
	case Request, Cancel:
		if len(body) != 12 {
			return nil, &ProtocolError{"malformed request/cancel payload"}
		}
		return &Message{
			ID:     id,
			Index:  int(binary.BigEndian.Uint32(body[0:4])),
			Offset: int(binary.BigEndian.Uint32(body[4:8])),
			Length: int(binary.BigEndian.Uint32(body[8:12])),
		}, nil
	case Piece:
		if len(body) < 8 {
			return nil, &ProtocolError{"malformed piece payload"}
		}
		return &Message{
			ID:     id,
			Index:  int(binary.BigEndian.Uint32(body[0:4])),
			Offset: int(binary.BigEndian.Uint32(body[4:8])),
			Block:  body[8:],
		}, nil
	default:
		// Unknown message id: already consumed its payload above, skip
		// silently for forward compatibility.
		return nil, nil
	}
}
