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
	"fmt"

	"github.com/uwsn/uansim/energy"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/mac"
	"github.com/uwsn/uansim/phy"
	"github.com/uwsn/uansim/radiomodel"
	. "github.com/uwsn/uansim/types"
)

const (
	modemRadioName  = "modem"
	wakeupRadioName = "wakeup"
)

// Node is one simulated underwater node: a data modem, an optional wakeup receiver, a MAC engine
// and a traffic application.
type Node struct {
	S      *Simulation
	Id     NodeId
	Logger *logger.NodeLogger
	cfg    NodeConfig

	phy    *phy.Phy
	wuPhy  *phy.Phy
	mac    mac.Engine
	energy *energy.NodeEnergy
	app    *Application
}

func newNode(s *Simulation, cfg NodeConfig) (*Node, error) {
	nodeid := cfg.ID
	node := &Node{
		S:      s,
		Id:     nodeid,
		Logger: logger.GetNodeLogger(s.cfg.OutputDir, s.cfg.RunId, nodeid, s.cfg.NodeLogFile, s.d.Now),
		cfg:    cfg,
	}
	node.Logger.Debugf("Node config: role=%v position=(%.1f,%.1f,%.1f) range=%.0f", cfg.Role, cfg.X, cfg.Y,
		cfg.Z, cfg.RadioRange)

	engine, err := mac.New(s.cfg.Mac, NodeAddress(nodeid), mac.Deps{
		Sched: s.d,
		Rng:   s.gen.Stream(fmt.Sprintf("mac-%d", nodeid)),
		Log:   node.Logger,
	})
	if err != nil {
		return nil, err
	}
	node.mac = engine

	now := s.d.Now()
	node.energy = s.energyAnalyser.AddNode(nodeid, now)
	modemEnergy := node.energy.AddRadio(modemRadioName, s.cfg.Energy.Modem)
	node.phy = phy.New(modemRadioName, nodeid, s.cfg.Phy, s.d, s.medium, node.Logger, modemEnergy)
	s.medium.AddNode(radiomodel.NewRadioNode(nodeid, node.radioNodeConfig(), node.phy))
	engine.AttachPhy(node.phy)

	if s.wuMedium != nil {
		wuEnergy := node.energy.AddRadio(wakeupRadioName, s.cfg.Energy.Wakeup)
		node.wuPhy = phy.New(wakeupRadioName, nodeid, s.cfg.WakeupPhy, s.d, s.wuMedium, node.Logger, wuEnergy)
		s.wuMedium.AddNode(radiomodel.NewRadioNode(nodeid, node.radioNodeConfig(), node.wuPhy))
		engine.AttachWakeupPhy(node.wuPhy)
	}

	node.app = newApplication(node, s.cfg.Traffic, s.traffic, s.gen.Stream(fmt.Sprintf("app-%d", nodeid)))
	engine.SetForwardUpCb(node.app.receive)
	return node, nil
}

func (node *Node) radioNodeConfig() *radiomodel.RadioNodeConfig {
	return &radiomodel.RadioNodeConfig{
		X:          node.cfg.X,
		Y:          node.cfg.Y,
		Z:          node.cfg.Z,
		RadioRange: node.cfg.RadioRange,
	}
}

func (node *Node) String() string {
	return fmt.Sprintf("Node<%d>", node.Id)
}

func (node *Node) Config() NodeConfig {
	return node.cfg
}

func (node *Node) Role() NodeRole {
	return node.cfg.Role
}

func (node *Node) Mac() mac.Engine {
	return node.mac
}

func (node *Node) Phy() *phy.Phy {
	return node.phy
}

// WakeupPhy returns the wakeup receiver, or nil if the MAC does not use one.
func (node *Node) WakeupPhy() *phy.Phy {
	return node.wuPhy
}

func (node *Node) App() *Application {
	return node.app
}

// GetCounters returns the MAC, phy and application counters of the node.
func (node *Node) GetCounters() NodeCounters {
	counters := unionCounters(
		node.mac.Counters().Map("mac."),
		phyCounters("phy.", node.phy.GetStats()),
		trafficCounters("app.", node.S.traffic.NodeTraffic(node.Id)),
	)
	if node.wuPhy != nil {
		counters.Add(phyCounters("wuphy.", node.wuPhy.GetStats()))
	}
	return counters
}

func (node *Node) DisplayPendingLogEntries() {
	node.Logger.DisplayPendingLogEntries()
}

// dispose stops the node and removes its radios from the media.
func (node *Node) dispose() {
	node.app.Stop()
	node.mac.Dispose()
	node.S.medium.DeleteNode(node.Id)
	if node.wuPhy != nil {
		node.S.wuMedium.DeleteNode(node.Id)
	}
	node.Logger.DisplayPendingLogEntries()
}

func phyCounters(prefix string, s phy.Stats) NodeCounters {
	return NodeCounters{
		prefix + "tx_frames":   uint64(s.NumTxFrames),
		prefix + "tx_tones":    uint64(s.NumTxTones),
		prefix + "rx_good":     uint64(s.NumRxGood),
		prefix + "rx_error":    uint64(s.NumRxError),
		prefix + "rx_tones":    uint64(s.NumRxTones),
		prefix + "rx_dropped":  uint64(s.NumRxDropped),
		prefix + "send_denied": uint64(s.NumSendDenied),
	}
}

func trafficCounters(prefix string, t NodeTraffic) NodeCounters {
	return NodeCounters{
		prefix + "generated":  t.Generated,
		prefix + "rejected":   t.Rejected,
		prefix + "received":   t.Received,
		prefix + "duplicates": t.Duplicates,
	}
}
