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
	"golang.org/x/exp/slices"

	"github.com/uwsn/uansim/logger"
	. "github.com/uwsn/uansim/types"
)

// RadioEnergy tracks the time spent by one radio of a node in each state.
type RadioEnergy struct {
	name  string
	power PowerConfig
	radio RadioStatus
}

func (re *RadioEnergy) Name() string {
	return re.name
}

func (re *RadioEnergy) State() RadioStates {
	return re.radio.State
}

func (re *RadioEnergy) ComputeRadioState(timestamp uint64) {
	logger.AssertTrue(timestamp >= re.radio.Timestamp)
	delta := timestamp - re.radio.Timestamp
	switch re.radio.State {
	case RadioDisabled:
		re.radio.SpentDisabled += delta
	case RadioSleep:
		re.radio.SpentSleep += delta
	case RadioIdle:
		re.radio.SpentIdle += delta
	case RadioTx:
		re.radio.SpentTx += delta
	case RadioRx:
		re.radio.SpentRx += delta
	default:
		logger.Panicf("unknown radio state: %v", re.radio.State)
	}
	re.radio.Timestamp = timestamp
}

func (re *RadioEnergy) SetRadioState(state RadioStates, timestamp uint64) {
	//Mandatory: compute energy consumed by the radio first.
	re.ComputeRadioState(timestamp)
	re.radio.State = state
}

// Status returns the time accounting up to the last state change or computation.
func (re *RadioEnergy) Status() RadioStatus {
	return re.radio
}

// Consumption returns the energy in Joules spent so far.
func (re *RadioEnergy) Consumption() Consumption {
	return Consumption{
		Disabled: joules(re.radio.SpentDisabled, re.power.Disabled),
		Sleep:    joules(re.radio.SpentSleep, re.power.Sleep),
		Idle:     joules(re.radio.SpentIdle, re.power.Idle),
		Tx:       joules(re.radio.SpentTx, re.power.Tx),
		Rx:       joules(re.radio.SpentRx, re.power.Rx),
	}
}

func joules(us uint64, watts float64) float64 {
	return UsToSeconds(us) * watts
}

type NodeEnergy struct {
	nodeId     NodeId
	timestamp  uint64
	radios     map[string]*RadioEnergy
	radioNames []string
}

// AddRadio registers a radio of the node, initially disabled.
func (node *NodeEnergy) AddRadio(name string, power PowerConfig) *RadioEnergy {
	if re, ok := node.radios[name]; ok {
		return re
	}
	re := &RadioEnergy{
		name:  name,
		power: power,
		radio: RadioStatus{
			State:     RadioDisabled,
			Timestamp: node.timestamp,
		},
	}
	node.radios[name] = re
	node.radioNames = append(node.radioNames, name)
	slices.Sort(node.radioNames)
	return re
}

func (node *NodeEnergy) GetRadio(name string) *RadioEnergy {
	return node.radios[name]
}

func (node *NodeEnergy) ComputeRadioState(timestamp uint64) {
	for _, name := range node.radioNames {
		node.radios[name].ComputeRadioState(timestamp)
	}
}

func (node *NodeEnergy) Consumption() NodeConsumption {
	nc := NodeConsumption{
		NodeId: node.nodeId,
		Radios: make(map[string]Consumption, len(node.radios)),
	}
	for _, name := range node.radioNames {
		c := node.radios[name].Consumption()
		nc.Radios[name] = c
		nc.Total += c.Total()
	}
	return nc
}

func newNode(nodeID NodeId, timestamp uint64) *NodeEnergy {
	node := &NodeEnergy{
		nodeId:    nodeID,
		timestamp: timestamp,
		radios:    map[string]*RadioEnergy{},
	}
	return node
}
