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

package pcap

import (
	"encoding/binary"
	"os"
)

// The meta format (DLT_USER1) prefixes every record with a small TLV header describing the signal,
// so that tones and wakeup preambles of both bands can be captured next to the MAC frames.
const (
	dltUser1            = 148
	pcapMetaHeaderSize  = 36
	metaHeaderVersion   = 0
	tlvSource           = 1
	tlvSignal           = 2
	tlvDuration         = 3
	tlvChannelAssigment = 4
)

type metaFile struct {
	fd *os.File
}

func newMetaFile(filename string) (File, error) {
	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	pf := &metaFile{
		fd: fd,
	}

	if err = writeFileHeader(fd, dltUser1); err != nil {
		_ = pf.Close()
		return nil, err
	}

	return pf, nil
}

func setTlv(hdr []byte, idx *int, tlvType uint16, data []byte) {
	var l uint16
	lenData := uint16(len(data))
	l = lenData & 0xFFFC
	if lenData&0x0003 > 0 {
		l += 4
	}
	binary.LittleEndian.PutUint16(hdr[*idx:*idx+2], tlvType)
	binary.LittleEndian.PutUint16(hdr[*idx+2:*idx+4], lenData)
	copy(hdr[*idx+4:], data)
	*idx += int(4 + l)
}

func (pf *metaFile) AppendFrame(frame Frame) error {
	var header [pcapFrameHeaderSize + pcapMetaHeaderSize]byte
	putRecordHeader(header[:], frame.Timestamp, uint32(len(frame.Data))+pcapMetaHeaderSize)

	n := pcapFrameHeaderSize
	header[n] = metaHeaderVersion
	header[n+1] = 0 // reserved
	binary.LittleEndian.PutUint16(header[n+2:n+4], pcapMetaHeaderSize)
	n += 4

	src := make([]byte, 4)
	binary.LittleEndian.PutUint32(src, uint32(frame.Src))
	setTlv(header[:], &n, tlvSource, src)
	setTlv(header[:], &n, tlvSignal, []byte{frame.Kind, frame.Marker})
	dur := make([]byte, 4)
	binary.LittleEndian.PutUint32(dur, uint32(frame.DurationUs))
	setTlv(header[:], &n, tlvDuration, dur)
	channel := make([]byte, 2)
	binary.LittleEndian.PutUint16(channel, uint16(frame.Channel))
	setTlv(header[:], &n, tlvChannelAssigment, channel)

	if _, err := pf.fd.Write(header[:]); err != nil {
		return err
	}
	_, err := pf.fd.Write(frame.Data)
	return err
}

func (pf *metaFile) Sync() error {
	return pf.fd.Sync()
}

func (pf *metaFile) Close() error {
	return pf.fd.Close()
}
