// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package link implements the framed, connection-oriented messaging layer
// described by the protocol: a codec for six frame types, an endpoint base
// shared by the server and client roles, and the event/tick machinery that
// drives them.
package link

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Tag identifies the wire type of a frame. It is always the first byte of a
// datagram.
type Tag byte

const (
	TagData Tag = iota
	TagConnectionRequest
	TagConnectionClose
	TagConnectionConfirm
	TagPasswordRequest
	TagPassword
)

// Frame is implemented by every decodable wire type, plus UnknownFrame for
// tags or bodies that failed to parse.
type Frame interface {
	Tag() Tag
}

// DataFrame carries an application payload with no additional framing.
type DataFrame struct {
	Payload []byte
}

func (DataFrame) Tag() Tag { return TagData }

// ConnectionRequestFrame has no body; it is the client's opening handshake
// message.
type ConnectionRequestFrame struct{}

func (ConnectionRequestFrame) Tag() Tag { return TagConnectionRequest }

// ConnectionCloseFrame carries a human-readable disconnect reason.
type ConnectionCloseFrame struct {
	Reason string
}

func (ConnectionCloseFrame) Tag() Tag { return TagConnectionClose }

// ConnectionConfirmFrame carries the id the server assigned to the peer.
type ConnectionConfirmFrame struct {
	ID uint32
}

func (ConnectionConfirmFrame) Tag() Tag { return TagConnectionConfirm }

// PasswordRequestFrame has no body; it asks the peer to (re)send a Password
// frame.
type PasswordRequestFrame struct{}

func (PasswordRequestFrame) Tag() Tag { return TagPasswordRequest }

// PasswordFrame carries the admission secret in cleartext (encryption of the
// secret in transit is an explicit non-goal).
type PasswordFrame struct {
	Secret string
}

func (PasswordFrame) Tag() Tag { return TagPassword }

// UnknownFrame is handed to the generic handler for any tag this codec does
// not recognize. It is not an error condition on its own.
type UnknownFrame struct {
	Raw []byte
}

func (UnknownFrame) Tag() Tag { return Tag(0xff) }

// ErrMalformedFrame is returned by Decode when a recognized tag's body is
// truncated or otherwise inconsistent with its declared length. The caller
// must treat the datagram as unknown and must not reply to it.
var ErrMalformedFrame = errors.New("link: malformed frame")

// Encode serializes f into a single datagram: a 1-byte tag followed by its
// fields in declared order, all integers in network byte order.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case DataFrame:
		buf := make([]byte, 0, 1+len(v.Payload))
		buf = append(buf, byte(TagData))
		buf = append(buf, v.Payload...)
		return buf, nil
	case ConnectionRequestFrame:
		return []byte{byte(TagConnectionRequest)}, nil
	case ConnectionCloseFrame:
		buf := []byte{byte(TagConnectionClose)}
		return appendString(buf, v.Reason), nil
	case ConnectionConfirmFrame:
		buf := make([]byte, 1, 5)
		buf[0] = byte(TagConnectionConfirm)
		buf = binary.BigEndian.AppendUint32(buf, v.ID)
		return buf, nil
	case PasswordRequestFrame:
		return []byte{byte(TagPasswordRequest)}, nil
	case PasswordFrame:
		buf := []byte{byte(TagPassword)}
		return appendString(buf, v.Secret), nil
	default:
		return nil, errors.Errorf("link: cannot encode frame type %T", f)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// readString reads a 4-byte big-endian length prefix followed by that many
// raw bytes. It never panics on short input.
func readString(body []byte) (s string, rest []byte, err error) {
	if len(body) < 4 {
		return "", nil, errors.WithStack(ErrMalformedFrame)
	}
	n := binary.BigEndian.Uint32(body[:4])
	body = body[4:]
	if uint64(n) > uint64(len(body)) {
		return "", nil, errors.WithStack(ErrMalformedFrame)
	}
	return string(body[:n]), body[n:], nil
}

// Decode parses a single datagram into a Frame. Unrecognized tags yield an
// UnknownFrame with no error; truncated bodies of a recognized tag yield
// ErrMalformedFrame and the caller must route the datagram to the unknown
// handler without replaying it.
func Decode(datagram []byte) (Frame, error) {
	if len(datagram) == 0 {
		return nil, errors.WithStack(ErrMalformedFrame)
	}
	tag := Tag(datagram[0])
	body := datagram[1:]

	switch tag {
	case TagData:
		payload := make([]byte, len(body))
		copy(payload, body)
		return DataFrame{Payload: payload}, nil
	case TagConnectionRequest:
		return ConnectionRequestFrame{}, nil
	case TagConnectionClose:
		reason, _, err := readString(body)
		if err != nil {
			return nil, err
		}
		return ConnectionCloseFrame{Reason: reason}, nil
	case TagConnectionConfirm:
		if len(body) < 4 {
			return nil, errors.WithStack(ErrMalformedFrame)
		}
		return ConnectionConfirmFrame{ID: binary.BigEndian.Uint32(body)}, nil
	case TagPasswordRequest:
		return PasswordRequestFrame{}, nil
	case TagPassword:
		secret, _, err := readString(body)
		if err != nil {
			return nil, err
		}
		return PasswordFrame{Secret: secret}, nil
	default:
		raw := make([]byte, len(datagram))
		copy(raw, datagram)
		return UnknownFrame{Raw: raw}, nil
	}
}

// EncodeNested prepends an 8-byte big-endian size-of-data field to payload,
// for callers that want to wrap one packet inside another frame's payload
// (e.g. an application message inside a Data frame).
func EncodeNested(payload []byte) []byte {
	buf := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// DecodeNested reverses EncodeNested, returning the inner payload and
// whatever bytes followed it.
func DecodeNested(buf []byte) (inner, rest []byte, err error) {
	if len(buf) < 8 {
		return nil, nil, errors.WithStack(ErrMalformedFrame)
	}
	n := binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	if n > uint64(len(buf)) {
		return nil, nil, errors.WithStack(ErrMalformedFrame)
	}
	return buf[:n], buf[n:], nil
}
