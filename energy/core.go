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

package energy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/uwsn/uansim/logger"
	. "github.com/uwsn/uansim/types"
)

type EnergyAnalyser struct {
	nodes                map[NodeId]*NodeEnergy
	networkHistory       []NetworkConsumption
	energyHistoryByNodes [][]NodeConsumption
	title                string
}

func (e *EnergyAnalyser) AddNode(nodeID NodeId, timestamp uint64) *NodeEnergy {
	if node, ok := e.nodes[nodeID]; ok {
		return node
	}
	node := newNode(nodeID, timestamp)
	e.nodes[nodeID] = node
	return node
}

func (e *EnergyAnalyser) DeleteNode(nodeID NodeId) {
	delete(e.nodes, nodeID)

	if len(e.nodes) == 0 {
		e.ClearEnergyData()
	}
}

func (e *EnergyAnalyser) GetNode(nodeID NodeId) *NodeEnergy {
	return e.nodes[nodeID]
}

func (e *EnergyAnalyser) GetNetworkEnergyHistory() []NetworkConsumption {
	return e.networkHistory
}

func (e *EnergyAnalyser) GetEnergyHistoryByNodes() [][]NodeConsumption {
	return e.energyHistoryByNodes
}

func (e *EnergyAnalyser) GetLatestEnergyOfNodes() []NodeConsumption {
	if len(e.energyHistoryByNodes) == 0 {
		return nil
	}
	return e.energyHistoryByNodes[len(e.energyHistoryByNodes)-1]
}

func (e *EnergyAnalyser) sortedNodeIds() []NodeId {
	ids := make([]NodeId, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// StoreNetworkEnergy brings all radios up to timestamp and appends a snapshot to the history.
// The network snapshot holds the average consumption per node.
func (e *EnergyAnalyser) StoreNetworkEnergy(timestamp uint64) {
	nodesEnergySnapshot := make([]NodeConsumption, 0, len(e.nodes))
	networkSnapshot := NetworkConsumption{
		Timestamp: timestamp,
	}

	netSize := float64(len(e.nodes))
	for _, id := range e.sortedNodeIds() {
		node := e.nodes[id]
		node.ComputeRadioState(timestamp)

		nc := node.Consumption()
		for _, c := range nc.Radios {
			networkSnapshot.add(c, 1/netSize)
		}
		nodesEnergySnapshot = append(nodesEnergySnapshot, nc)
	}

	e.networkHistory = append(e.networkHistory, networkSnapshot)
	e.energyHistoryByNodes = append(e.energyHistoryByNodes, nodesEnergySnapshot)
}

// SaveEnergyDataToFile writes <dir>/<name>_nodes.txt and <dir>/<name>.txt.
func (e *EnergyAnalyser) SaveEnergyDataToFile(dir string, name string, timestamp uint64) error {
	if name == "" {
		if e.title == "" {
			name = "energy"
		} else {
			name = e.title
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create energy directory %s", dir)
	}

	path := filepath.Join(dir, name)
	fileNodes, err := os.Create(path + "_nodes.txt")
	if err != nil {
		return errors.Wrapf(err, "create file")
	}
	defer fileNodes.Close()

	fileNetwork, err := os.Create(path + ".txt")
	if err != nil {
		return errors.Wrapf(err, "create file")
	}
	defer fileNetwork.Close()

	e.writeEnergyByNodes(fileNodes, timestamp)
	e.writeNetworkEnergy(fileNetwork, timestamp)
	logger.Infof("energy data saved to %s", path)
	return nil
}

func (e *EnergyAnalyser) writeEnergyByNodes(w io.Writer, timestamp uint64) {
	fmt.Fprintf(w, "Duration of the simulated network (in milliseconds): %d\n", timestamp/1000)
	fmt.Fprintf(w, "ID\tRadio\tDisabled (J)\tSleep (J)\tIdle (J)\tTransmitting (J)\tReceiving (J)\n")

	for _, id := range e.sortedNodeIds() {
		node := e.nodes[id]
		node.ComputeRadioState(timestamp)
		for _, name := range node.radioNames {
			c := node.radios[name].Consumption()
			fmt.Fprintf(w, "%d\t%s\t%f\t%f\t%f\t%f\t%f\n", id, name, c.Disabled, c.Sleep, c.Idle, c.Tx, c.Rx)
		}
	}
}

func (e *EnergyAnalyser) writeNetworkEnergy(w io.Writer, timestamp uint64) {
	fmt.Fprintf(w, "Duration of the simulated network (in milliseconds): %d\n", timestamp/1000)
	fmt.Fprintf(w, "Time (ms)\tDisabled (J)\tSleep (J)\tIdle (J)\tTransmitting (J)\tReceiving (J)\n")
	for _, snapshot := range e.networkHistory {
		fmt.Fprintf(w, "%d\t%f\t%f\t%f\t%f\t%f\n",
			snapshot.Timestamp/1000,
			snapshot.Disabled,
			snapshot.Sleep,
			snapshot.Idle,
			snapshot.Tx,
			snapshot.Rx,
		)
	}
}

func (e *EnergyAnalyser) ClearEnergyData() {
	logger.Debugf("Node's energy data cleared")
	e.networkHistory = make([]NetworkConsumption, 0, 3600)
	e.energyHistoryByNodes = make([][]NodeConsumption, 0, 3600)
}

func (e *EnergyAnalyser) SetTitle(title string) {
	e.title = title
}

func NewEnergyAnalyser() *EnergyAnalyser {
	ea := &EnergyAnalyser{
		nodes:                make(map[NodeId]*NodeEnergy),
		networkHistory:       make([]NetworkConsumption, 0, 3600), //Start with space for 1 sample every 30s for 1 hour = 1*60*60/30 = 3600 samples
		energyHistoryByNodes: make([][]NodeConsumption, 0, 3600),
	}
	return ea
}
