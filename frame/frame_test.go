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

package frame

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/uwsn/uansim/types"
)

func TestFrame_DataLayout(t *testing.T) {
	f := NewData(1, 2, []byte{0xAA, 0xBB})
	assert.Equal(t, 5, f.Size())
	data, err := f.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, byte(TypeData), 0xAA, 0xBB}, data)

	g, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, f.Header, g.Header)
	assert.Equal(t, f.Payload, g.Payload)

	data[3] = 0
	assert.Equal(t, byte(0xAA), g.Payload[0])
}

func TestFrame_ControlSize(t *testing.T) {
	f := NewControl(3, BroadcastAddress, TypeRTS, 10)
	assert.Equal(t, 10, f.Size())
	assert.True(t, f.Header.Type.IsControl())
	assert.True(t, f.Header.Dst.IsBroadcast())

	ack := NewControl(3, 4, TypeAck, 0)
	assert.Equal(t, HeaderSize, ack.Size())
}

func TestFrame_Wakeup(t *testing.T) {
	f := NewWakeup(7, MarkerWakeup)
	assert.True(t, f.IsWakeup())
	assert.Equal(t, WakeupHeaderSize, f.Size())
	data, err := f.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{7, byte(MarkerWakeup)}, data)

	g, err := UnmarshalWakeup(data)
	require.NoError(t, err)
	assert.Equal(t, Address(7), g.Wakeup.Dst)
	assert.Equal(t, MarkerWakeup, g.Wakeup.Marker)
}

func TestFrame_Tone(t *testing.T) {
	f := NewTone(MarkerCTD, 3)
	assert.Equal(t, 3, f.Size())
	_, err := f.Marshal()
	assert.True(t, errors.Is(err, ErrToneFrame))
	assert.Equal(t, "TONE ctd (3B)", f.String())
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2})
	assert.True(t, errors.Is(err, ErrTruncated))
	_, err = Unmarshal([]byte{1, 2, 0})
	assert.True(t, errors.Is(err, ErrUnknownType))
	_, err = Unmarshal([]byte{1, 2, byte(TypeWakeup)})
	assert.True(t, errors.Is(err, ErrUnknownType))
	_, err = UnmarshalWakeup([]byte{1})
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "RTS", TypeRTS.String())
	assert.Equal(t, "Type(9)", Type(9).String())
	assert.Equal(t, "DATA 1->bcast (3B)", NewData(1, BroadcastAddress, nil).String())
}
