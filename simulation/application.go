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
package simulation

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

const (
	TrafficOff     = "off"
	TrafficNode    = "node"    // one generator per source node
	TrafficNetwork = "network" // one generator for the network, each packet from a random source

	DestinationSink      = "sink"
	DestinationBroadcast = "broadcast"

	seqNumSize = 2
)

// TrafficConfig configures packet generation. Inter-generation times are exponential with mean
// MeanInterval seconds; draws above MaxInterval (if > 0) are redrawn.
type TrafficConfig struct {
	Mode         string  `yaml:"mode"`
	MeanInterval float64 `yaml:"meanInterval"`
	MaxInterval  float64 `yaml:"maxInterval"`
	PktsPerTime  int     `yaml:"pktsPerTime"`
	PacketSize   int     `yaml:"packetSize"`
	MaxBytes     int     `yaml:"maxBytes"`
	StartOffset  float64 `yaml:"startOffset"`
	Destination  string  `yaml:"destination"`
}

func DefaultTrafficConfig() TrafficConfig {
	return TrafficConfig{
		Mode:         TrafficNetwork,
		MeanInterval: 0.6,
		MaxInterval:  0,
		PktsPerTime:  1,
		PacketSize:   20,
		MaxBytes:     0,
		StartOffset:  0.5,
		Destination:  DestinationSink,
	}
}

func (t TrafficConfig) Validate() error {
	switch t.Mode {
	case TrafficOff, TrafficNode, TrafficNetwork:
	default:
		return errors.Errorf("unknown traffic mode %q", t.Mode)
	}
	switch t.Destination {
	case DestinationSink, DestinationBroadcast:
	default:
		return errors.Errorf("unknown destination %q", t.Destination)
	}
	if t.Mode != TrafficOff && t.MeanInterval <= 0 {
		return errors.Errorf("meanInterval must be positive")
	}
	if t.MaxInterval < 0 || t.MaxBytes < 0 || t.StartOffset < 0 {
		return errors.Errorf("maxInterval, maxBytes and startOffset must not be negative")
	}
	if t.PktsPerTime < 1 {
		return errors.Errorf("pktsPerTime must be at least 1")
	}
	if t.PacketSize < seqNumSize {
		return errors.Errorf("packetSize must be at least %d bytes", seqNumSize)
	}
	return nil
}

// Application is the traffic endpoint of a node: it numbers and hands packets to the MAC, and
// reports sent and received packets to the traffic tracker.
type Application struct {
	node     *Node
	cfg      TrafficConfig
	tracker  *trafficTracker
	rng      *prng.Stream
	genTimer *dispatcher.Timer
	seq      uint16
	totBytes int
}

func newApplication(node *Node, cfg TrafficConfig, tracker *trafficTracker, rng *prng.Stream) *Application {
	app := &Application{
		node:    node,
		cfg:     cfg,
		tracker: tracker,
		rng:     rng,
	}
	app.genTimer = dispatcher.NewTimer(node.S.d, "app-gen", app.generate)
	return app
}

// Start schedules the first generation cycle after offset microseconds.
func (app *Application) Start(offset uint64) {
	app.genTimer.Restart(offset)
}

func (app *Application) Stop() {
	app.genTimer.Cancel()
}

func (app *Application) IsRunning() bool {
	return app.genTimer.IsRunning()
}

// Exhausted returns true if the MaxBytes budget has been used up.
func (app *Application) Exhausted() bool {
	return app.cfg.MaxBytes > 0 && app.totBytes >= app.cfg.MaxBytes
}

func (app *Application) generate() {
	if app.Exhausted() {
		app.node.Logger.Debugf("traffic budget of %d bytes used up", app.cfg.MaxBytes)
		return
	}
	for i := 0; i < app.cfg.PktsPerTime; i++ {
		app.Send(app.node.S.trafficDestination(), app.cfg.PacketSize)
	}
	next := app.rng.Exponential(app.cfg.MeanInterval, app.cfg.MaxInterval)
	app.genTimer.Restart(SecondsToUs(next))
}

// Send hands a packet of size bytes for dst to the MAC. Returns false if the MAC refused it.
func (app *Application) Send(dst Address, size int) bool {
	if size < seqNumSize {
		size = seqNumSize
	}
	seq := app.seq
	app.seq++
	payload := make([]byte, size)
	binary.BigEndian.PutUint16(payload, seq)

	now := app.node.S.d.Now()
	ok := app.node.mac.Enqueue(payload, dst)
	app.tracker.sent(app.node.Id, seq, now, ok)
	if ok {
		app.totBytes += size
		app.node.Logger.Debugf("app: packet %d (%d bytes) to %v queued", seq, size, dst)
	} else {
		app.node.Logger.Infof("app: packet %d to %v rejected by MAC", seq, dst)
	}
	return ok
}

func (app *Application) receive(payload []byte, src Address) {
	if len(payload) < seqNumSize {
		app.node.Logger.Warnf("app: runt packet of %d bytes from %v", len(payload), src)
		return
	}
	seq := binary.BigEndian.Uint16(payload)
	now := app.node.S.d.Now()
	dup := app.tracker.received(NodeId(src), seq, app.node.Id, len(payload), now)
	if dup {
		app.node.Logger.Infof("app: duplicate packet %d from %v", seq, src)
	} else {
		app.node.Logger.Debugf("app: packet %d from %v", seq, src)
	}
}
