package protocol

import (
	"encoding/gob"
	"fmt"
	"io"
	"sync"
)

// Codec handles message encoding/decoding. Encode may be called from
// several goroutines; Decode must only be called from one.
type Codec struct {
	encMu sync.Mutex
	enc   *gob.Encoder
	dec   *gob.Decoder
}

// NewCodec creates a codec for the given read/writer
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		enc: gob.NewEncoder(rw),
		dec: gob.NewDecoder(rw),
	}
}

// Encode writes a message
func (c *Codec) Encode(msg *Message) error {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	return c.enc.Encode(msg)
}

// Send wraps payload in a Message of the given type and writes it.
func (c *Codec) Send(typ MessageType, payload interface{}) error {
	return c.Encode(&Message{Type: typ, Payload: payload})
}

// Decode reads a message
func (c *Codec) Decode() (*Message, error) {
	var msg Message
	if err := c.dec.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Expect reads the next message and fails unless it has the given type.
func (c *Codec) Expect(typ MessageType) (*Message, error) {
	msg, err := c.Decode()
	if err != nil {
		return nil, err
	}
	if msg.Type != typ {
		return nil, fmt.Errorf("expected message type %d, got %d", typ, msg.Type)
	}
	return msg, nil
}
