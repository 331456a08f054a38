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

// Package mac implements the medium access protocols of the simulator. Each protocol is a
// separate Engine: a bounded FIFO send queue plus a state machine driven by enqueue calls, phy
// events and timers. Engines run on the single-threaded dispatcher and need no locking.
package mac

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/phy"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

var ErrUnknownProtocol = errors.New("unknown MAC protocol")

type Protocol int

const (
	ProtocolFama Protocol = iota + 1
	ProtocolTLohi
	ProtocolMaca
	ProtocolAlohaCS
	ProtocolCW
)

var protocolNames = map[Protocol]string{
	ProtocolFama:    "fama",
	ProtocolTLohi:   "tlohi",
	ProtocolMaca:    "maca",
	ProtocolAlohaCS: "aloha-cs",
	ProtocolCW:      "cw",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParseProtocol parses a protocol name, case-insensitive.
func ParseProtocol(name string) (Protocol, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range protocolNames {
		if n == name {
			return p, nil
		}
	}
	switch name {
	case "t-lohi":
		return ProtocolTLohi, nil
	case "alohacs", "aloha":
		return ProtocolAlohaCS, nil
	}
	return 0, errors.Wrapf(ErrUnknownProtocol, "%q", name)
}

func (p Protocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Protocol) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, err := ParseProtocol(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ForwardUpFunc receives the payload of each DATA frame delivered to this node.
type ForwardUpFunc func(payload []byte, src Address)

// Phy is the physical-layer adapter an engine sends through. *phy.Phy implements it.
type Phy interface {
	IsChannelBusy() bool
	IsIdle() bool
	IsTransmitting() bool
	IsReceiving() bool
	IsSleeping() bool
	Send(f *frame.Frame, mode int) error
	DataRateBps(mode int) uint32
	SetSleepMode(sleep bool)
	SetReceiver(r phy.Receiver)
	RegisterListener(l phy.Listener)
}

// Engine is a MAC protocol instance of one node.
type Engine interface {
	// Enqueue appends a DATA frame for dst to the send queue. Returns false if the frame was not
	// queued, because the queue is full or no phy is attached.
	Enqueue(payload []byte, dst Address) bool
	// AttachPhy attaches the data phy. Must be called once before the first Enqueue.
	AttachPhy(p Phy)
	// AttachWakeupPhy attaches the secondary wakeup radio used by duty-cycled engines.
	AttachWakeupPhy(p Phy)
	SetForwardUpCb(cb ForwardUpFunc)
	SetAddress(addr Address)
	GetAddress() Address
	Protocol() Protocol
	// State returns the name of the current protocol state.
	State() string
	QueueLen() int
	// PendingTimers returns the names of the timers currently pending.
	PendingTimers() []string
	Counters() Counters
	// Dispose cancels all timers and releases the phys.
	Dispose()
}

// Counters are the per-engine protocol statistics.
type Counters struct {
	Enqueued   uint64 `json:"enqueued" yaml:"enqueued"`
	QueueDrops uint64 `json:"queue_drops" yaml:"queueDrops"`
	TxData     uint64 `json:"tx_data" yaml:"txData"`
	TxControl  uint64 `json:"tx_control" yaml:"txControl"`
	TxTones    uint64 `json:"tx_tones" yaml:"txTones"`
	RxData     uint64 `json:"rx_data" yaml:"rxData"`
	RxControl  uint64 `json:"rx_control" yaml:"rxControl"`
	RxTones    uint64 `json:"rx_tones" yaml:"rxTones"`
	RxErrors   uint64 `json:"rx_errors" yaml:"rxErrors"`
	Delivered  uint64 `json:"delivered" yaml:"delivered"`
	Timeouts   uint64 `json:"timeouts" yaml:"timeouts"`
	Backoffs   uint64 `json:"backoffs" yaml:"backoffs"`
	Collisions uint64 `json:"collisions" yaml:"collisions"`
}

func (c *Counters) Add(o Counters) {
	c.Enqueued += o.Enqueued
	c.QueueDrops += o.QueueDrops
	c.TxData += o.TxData
	c.TxControl += o.TxControl
	c.TxTones += o.TxTones
	c.RxData += o.RxData
	c.RxControl += o.RxControl
	c.RxTones += o.RxTones
	c.RxErrors += o.RxErrors
	c.Delivered += o.Delivered
	c.Timeouts += o.Timeouts
	c.Backoffs += o.Backoffs
	c.Collisions += o.Collisions
}

// Map returns the counters keyed by their JSON names, each with the given prefix.
func (c Counters) Map(prefix string) map[string]uint64 {
	return map[string]uint64{
		prefix + "enqueued":    c.Enqueued,
		prefix + "queue_drops": c.QueueDrops,
		prefix + "tx_data":     c.TxData,
		prefix + "tx_control":  c.TxControl,
		prefix + "tx_tones":    c.TxTones,
		prefix + "rx_data":     c.RxData,
		prefix + "rx_control":  c.RxControl,
		prefix + "rx_tones":    c.RxTones,
		prefix + "rx_errors":   c.RxErrors,
		prefix + "delivered":   c.Delivered,
		prefix + "timeouts":    c.Timeouts,
		prefix + "backoffs":    c.Backoffs,
		prefix + "collisions":  c.Collisions,
	}
}

// Deps are the services an engine runs on.
type Deps struct {
	Sched dispatcher.Scheduler
	Rng   *prng.Stream
	Log   *logger.NodeLogger
}

// New creates the engine selected by cfg.Protocol for the node with address addr.
func New(cfg Config, addr Address, deps Deps) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.AssertNotNil(deps.Sched)
	logger.AssertNotNil(deps.Rng)
	logger.AssertNotNil(deps.Log)

	b := newBase(cfg, addr, deps)
	switch cfg.Protocol {
	case ProtocolFama:
		return newFama(b), nil
	case ProtocolTLohi:
		return newTLohi(b), nil
	case ProtocolMaca:
		return newMaca(b), nil
	case ProtocolAlohaCS, ProtocolCW:
		return newCW(b), nil
	default:
		return nil, errors.Wrapf(ErrUnknownProtocol, "protocol %d", cfg.Protocol)
	}
}
