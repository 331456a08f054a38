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

	"github.com/pkg/errors"

	"github.com/uwsn/uansim/logger"
	. "github.com/uwsn/uansim/types"
)

type FrameType int

const (
	FrameTypeOff FrameType = iota
	FrameTypeMac
	FrameTypeMeta
	FrameTypeUnknown
)

const (
	FrameTypeOffStr  string = "off"
	FrameTypeMacStr  string = "mac"
	FrameTypeMetaStr string = "meta"
)

const (
	dltUser0            = 147
	pcapMagicNumber     = 0xA1B2C3D4
	pcapVersionMajor    = 2
	pcapVersionMinor    = 4
	pcapFileHeaderSize  = 24
	pcapFrameHeaderSize = 16
	pcapSnapLen         = 256
)

const (
	// MAC frame with the invalid type 0, only included as t=0 simulation time reference for the PCAP file.
	timeReferenceFrameData string = "\x00\x00\x00uansim PCAP-start t=0 reference frame"
)

// File represents a PCAP file
type File interface {
	AppendFrame(frame Frame) error
	Sync() error
	Close() error
}

// Frame represents a single signal on a medium that can be added to a PCAP file. Tones carry no
// Data; the MAC format skips them.
type Frame struct {
	Timestamp  uint64
	Data       []byte
	Channel    ChannelId
	Src        NodeId
	Kind       uint8
	Marker     uint8
	DurationUs uint64
}

type macFile struct {
	fd *os.File
}

// NewFile creates a new PCAP file with all frames using specified frameType
func NewFile(filename string, frameType FrameType, useTimeRefFrame bool) (File, error) {
	var f File
	var err error

	switch frameType {
	case FrameTypeMac:
		f, err = newMacFile(filename)
	case FrameTypeMeta:
		f, err = newMetaFile(filename)
	default:
		f, err = nil, errors.Errorf("invalid PCAP frame type: %d", frameType)
	}

	if useTimeRefFrame && err == nil && f != nil {
		logger.PanicIfError(f.AppendFrame(Frame{
			Timestamp: 0,
			Data:      []byte(timeReferenceFrameData),
		}), "PCAP file time-reference 0 frame could not be written")
	}

	return f, err
}

func ParseFrameTypeStr(tp string) FrameType {
	switch tp {
	case FrameTypeOffStr, "":
		return FrameTypeOff
	case FrameTypeMacStr:
		return FrameTypeMac
	case FrameTypeMetaStr:
		return FrameTypeMeta
	default:
		return FrameTypeUnknown
	}
}

func newMacFile(filename string) (File, error) {
	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	pf := &macFile{
		fd: fd,
	}

	if err = writeFileHeader(fd, dltUser0); err != nil {
		_ = pf.Close()
		return nil, err
	}

	return pf, nil
}

func putRecordHeader(header []byte, ts uint64, length uint32) {
	binary.LittleEndian.PutUint32(header[:4], uint32(ts/1000000))
	binary.LittleEndian.PutUint32(header[4:8], uint32(ts%1000000))
	binary.LittleEndian.PutUint32(header[8:12], length)
	binary.LittleEndian.PutUint32(header[12:16], length)
}

func (pf *macFile) AppendFrame(frame Frame) error {
	if len(frame.Data) == 0 {
		return nil
	}
	var header [pcapFrameHeaderSize]byte
	putRecordHeader(header[:], frame.Timestamp, uint32(len(frame.Data)))

	if _, err := pf.fd.Write(header[:]); err != nil {
		return err
	}
	_, err := pf.fd.Write(frame.Data)
	return err
}

func (pf *macFile) Sync() error {
	return pf.fd.Sync()
}

func (pf *macFile) Close() error {
	return pf.fd.Close()
}

func writeFileHeader(fd *os.File, linkType uint32) error {
	var header [pcapFileHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], pcapMagicNumber)
	binary.LittleEndian.PutUint16(header[4:6], pcapVersionMajor)
	binary.LittleEndian.PutUint16(header[6:8], pcapVersionMinor)
	binary.LittleEndian.PutUint32(header[8:12], 0)
	binary.LittleEndian.PutUint32(header[12:16], 0)
	binary.LittleEndian.PutUint32(header[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(header[20:24], linkType)
	if _, err := fd.Write(header[:]); err != nil {
		return err
	}
	return fd.Sync()
}
