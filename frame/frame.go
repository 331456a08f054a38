// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package frame defines the frames exchanged between MAC peers and their byte layout.
//
// A MAC frame is a 3-byte header (source, destination, type) followed by an opaque payload.
// A wakeup preamble carries only a 2-byte wakeup header (destination, marker). Tones carry no
// bytes at all: only their presence and duration are observable by a receiver.
package frame

import (
	"fmt"

	"github.com/pkg/errors"

	. "github.com/uwsn/uansim/types"
)

const (
	HeaderSize       = 3
	WakeupHeaderSize = 2
)

var (
	ErrTruncated   = errors.New("frame truncated")
	ErrUnknownType = errors.New("unknown frame type")
	ErrToneFrame   = errors.New("tone frames carry no bytes")
)

type Type uint8

const (
	TypeRTS    Type = 1
	TypeCTS    Type = 2
	TypeData   Type = 3
	TypeAck    Type = 4
	TypeCTD    Type = 5
	TypeWakeup Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeRTS:
		return "RTS"
	case TypeCTS:
		return "CTS"
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	case TypeCTD:
		return "CTD"
	case TypeWakeup:
		return "WAKEUP"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

func (t Type) IsValid() bool {
	return t >= TypeRTS && t <= TypeWakeup
}

// IsControl returns true for the handshake frames RTS, CTS and ACK.
func (t Type) IsControl() bool {
	return t == TypeRTS || t == TypeCTS || t == TypeAck
}

// Marker identifies the kind of a tone or wakeup preamble.
type Marker uint8

const (
	MarkerNone     Marker = 0
	MarkerCTD      Marker = 1 // contention tone
	MarkerWakeupHE Marker = 2 // high-energy wakeup tone, wakes every listener
	MarkerWakeup   Marker = 3 // addressed wakeup preamble
)

func (m Marker) String() string {
	switch m {
	case MarkerNone:
		return "none"
	case MarkerCTD:
		return "ctd"
	case MarkerWakeupHE:
		return "wuhe"
	case MarkerWakeup:
		return "wu"
	default:
		return fmt.Sprintf("Marker(%d)", uint8(m))
	}
}

type Header struct {
	Src  Address
	Dst  Address
	Type Type
}

type WakeupHeader struct {
	Dst    Address
	Marker Marker
}

// Frame is immutable once built.
type Frame struct {
	Header  Header
	Payload []byte

	// Wakeup is set for wakeup preambles; such frames have no MAC header and no payload.
	Wakeup *WakeupHeader

	// Tone frames are energy bursts of ToneSize byte-times identified only by Marker.
	Tone     bool
	Marker   Marker
	ToneSize int
}

func NewData(src, dst Address, payload []byte) *Frame {
	return &Frame{
		Header:  Header{Src: src, Dst: dst, Type: TypeData},
		Payload: payload,
	}
}

func NewControl(src, dst Address, typ Type, size int) *Frame {
	f := &Frame{
		Header: Header{Src: src, Dst: dst, Type: typ},
	}
	if size > HeaderSize {
		f.Payload = make([]byte, size-HeaderSize)
	}
	return f
}

func NewTone(marker Marker, size int) *Frame {
	return &Frame{
		Tone:     true,
		Marker:   marker,
		ToneSize: size,
	}
}

func NewWakeup(dst Address, marker Marker) *Frame {
	return &Frame{
		Header: Header{Dst: dst, Type: TypeWakeup},
		Wakeup: &WakeupHeader{Dst: dst, Marker: marker},
	}
}

func (f *Frame) IsWakeup() bool {
	return f.Wakeup != nil
}

// Size returns the number of byte-times the frame occupies on the medium.
func (f *Frame) Size() int {
	switch {
	case f.Tone:
		return f.ToneSize
	case f.Wakeup != nil:
		return WakeupHeaderSize
	default:
		return HeaderSize + len(f.Payload)
	}
}

func (f *Frame) Marshal() ([]byte, error) {
	if f.Tone {
		return nil, ErrToneFrame
	}
	if f.Wakeup != nil {
		return []byte{byte(f.Wakeup.Dst), byte(f.Wakeup.Marker)}, nil
	}
	data := make([]byte, HeaderSize+len(f.Payload))
	data[0] = byte(f.Header.Src)
	data[1] = byte(f.Header.Dst)
	data[2] = byte(f.Header.Type)
	copy(data[HeaderSize:], f.Payload)
	return data, nil
}

// Unmarshal decodes a MAC frame. The returned frame owns a copy of the payload.
func Unmarshal(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "%d bytes", len(data))
	}
	typ := Type(data[2])
	if !typ.IsValid() || typ == TypeWakeup {
		return nil, errors.Wrapf(ErrUnknownType, "type %d", data[2])
	}
	f := &Frame{
		Header: Header{Src: Address(data[0]), Dst: Address(data[1]), Type: typ},
	}
	if len(data) > HeaderSize {
		f.Payload = append([]byte(nil), data[HeaderSize:]...)
	}
	return f, nil
}

// UnmarshalWakeup decodes a wakeup preamble.
func UnmarshalWakeup(data []byte) (*Frame, error) {
	if len(data) < WakeupHeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "%d bytes", len(data))
	}
	return NewWakeup(Address(data[0]), Marker(data[1])), nil
}

func (f *Frame) String() string {
	switch {
	case f.Tone:
		return fmt.Sprintf("TONE %s (%dB)", f.Marker, f.ToneSize)
	case f.Wakeup != nil:
		return fmt.Sprintf("WAKEUP %s->%s", f.Wakeup.Marker, f.Wakeup.Dst)
	default:
		return fmt.Sprintf("%s %s->%s (%dB)", f.Header.Type, f.Header.Src, f.Header.Dst, f.Size())
	}
}
