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

package mac

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/frame"
)

const DefaultQueueCapacity = 10

// Config holds the parameters of all engines; each engine reads the fields it needs.
// Times are in seconds, sizes in bytes.
type Config struct {
	Protocol      Protocol `yaml:"protocol"`
	QueueCapacity int      `yaml:"queueCapacity"`
	MaxPropDelay  float64  `yaml:"maxPropDelay"`

	// FAMA
	MinBackoff    float64 `yaml:"minBackoff"`
	MaxBackoff    float64 `yaml:"maxBackoff"`
	MaxPacketSize int     `yaml:"maxPacketSize"`
	RtsSize       int     `yaml:"rtsSize"`
	AckSize       int     `yaml:"ackSize"`
	UseAck        bool    `yaml:"useAck"`
	BulkSend      int     `yaml:"bulkSend"`

	// T-Lohi
	ToneSize       int  `yaml:"toneSize"`
	MaxFrameRounds int  `yaml:"maxFrameRounds"`
	Ultra          bool `yaml:"ultra"`

	// MACA
	MinBEB int `yaml:"minBEB"`
	MaxBEB int `yaml:"maxBEB"`

	// ALOHA-CS and CW
	CW       int     `yaml:"cw"`
	SlotTime float64 `yaml:"slotTime"`

	Wakeup       bool         `yaml:"wakeup"`
	WakeupParams WakeupConfig `yaml:"wakeupParams"`
}

type WakeupConfig struct {
	DelayTx    float64 `yaml:"delayTx"`
	WakeGuard  float64 `yaml:"wakeGuard"`
	ToneWakeup bool    `yaml:"toneWakeup"`
}

func DefaultWakeupConfig() WakeupConfig {
	return WakeupConfig{
		DelayTx:    0.000001,
		WakeGuard:  0.002,
		ToneWakeup: false,
	}
}

// DefaultConfig returns the default parameters of the given protocol.
func DefaultConfig(p Protocol) Config {
	cfg := Config{
		Protocol:       p,
		QueueCapacity:  DefaultQueueCapacity,
		MaxPropDelay:   0.3,
		MinBackoff:     0.1,
		MaxBackoff:     0.5,
		MaxPacketSize:  26,
		RtsSize:        10,
		AckSize:        10,
		UseAck:         true,
		BulkSend:       1,
		ToneSize:       3,
		MaxFrameRounds: 30,
		MinBEB:         1,
		MaxBEB:         10,
		CW:             10,
		SlotTime:       0.02,
		WakeupParams:   DefaultWakeupConfig(),
	}
	switch p {
	case ProtocolFama:
		cfg.MaxPropDelay = 0.47
	case ProtocolAlohaCS:
		cfg.SlotTime = 0.05
	}
	return cfg
}

// UnmarshalYAML decodes a config on top of the defaults of the protocol it names, so that a YAML
// section only needs to list the parameters it changes.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var peek struct {
		Protocol Protocol `yaml:"protocol"`
	}
	peek.Protocol = c.Protocol
	if err := value.Decode(&peek); err != nil {
		return err
	}
	if peek.Protocol == 0 {
		peek.Protocol = ProtocolFama
	}
	if peek.Protocol != c.Protocol || c.QueueCapacity == 0 {
		*c = DefaultConfig(peek.Protocol)
	}
	type plain Config
	return value.Decode((*plain)(c))
}

func (c *Config) Validate() error {
	if _, ok := protocolNames[c.Protocol]; !ok {
		return errors.Wrapf(ErrUnknownProtocol, "protocol %d", c.Protocol)
	}
	if c.QueueCapacity <= 0 {
		return errors.Errorf("queueCapacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxPropDelay < 0 {
		return errors.Errorf("maxPropDelay must not be negative")
	}
	if c.MinBackoff < 0 || c.MaxBackoff < c.MinBackoff {
		return errors.Errorf("invalid backoff bounds [%v, %v]", c.MinBackoff, c.MaxBackoff)
	}
	if c.RtsSize < frame.HeaderSize || c.AckSize < frame.HeaderSize {
		return errors.Errorf("control frames must hold at least the %d byte header", frame.HeaderSize)
	}
	if c.BulkSend < 1 {
		return errors.Errorf("bulkSend must be at least 1, got %d", c.BulkSend)
	}
	if c.MinBEB < 1 || c.MaxBEB < c.MinBEB {
		return errors.Errorf("invalid BEB bounds [%d, %d]", c.MinBEB, c.MaxBEB)
	}
	if c.CW < 1 || c.SlotTime < 0 {
		return errors.Errorf("invalid contention window %d x %v", c.CW, c.SlotTime)
	}
	if c.ToneSize < 1 || c.MaxFrameRounds < 1 {
		return errors.Errorf("invalid tone parameters")
	}
	return nil
}

// UsesWakeup returns true if the engine sends through the wakeup coordinator.
func (c *Config) UsesWakeup() bool {
	return c.Wakeup || (c.Protocol == ProtocolTLohi && c.Ultra)
}
