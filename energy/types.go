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
	. "github.com/uwsn/uansim/types"
)

// PowerConfig is the power draw in Watts of a radio in each state.
type PowerConfig struct {
	Disabled float64 `yaml:"disabled"`
	Sleep    float64 `yaml:"sleep"`
	Idle     float64 `yaml:"idle"`
	Rx       float64 `yaml:"rx"`
	Tx       float64 `yaml:"tx"`
}

// DefaultModemPower returns the power figures of an acoustic modem.
func DefaultModemPower() PowerConfig {
	return PowerConfig{
		Disabled: 0,
		Sleep:    0.0058,
		Idle:     0.158,
		Rx:       0.158,
		Tx:       50,
	}
}

// DefaultWakeupPower returns the power figures of a low-power wakeup receiver.
func DefaultWakeupPower() PowerConfig {
	return PowerConfig{
		Disabled: 0,
		Sleep:    0.0001,
		Idle:     0.005,
		Rx:       0.005,
		Tx:       0.5,
	}
}

const (
	ComputePeriod uint64 = 30000000 // in microseconds
)

type RadioStatus struct {
	State         RadioStates
	SpentDisabled uint64
	SpentSleep    uint64
	SpentIdle     uint64
	SpentTx       uint64
	SpentRx       uint64
	Timestamp     uint64
}

// Consumption is energy in Joules per radio state.
type Consumption struct {
	Disabled float64 `json:"disabled"`
	Sleep    float64 `json:"sleep"`
	Idle     float64 `json:"idle"`
	Tx       float64 `json:"tx"`
	Rx       float64 `json:"rx"`
}

func (c Consumption) Total() float64 {
	return c.Disabled + c.Sleep + c.Idle + c.Tx + c.Rx
}

func (c *Consumption) add(o Consumption, scale float64) {
	c.Disabled += o.Disabled * scale
	c.Sleep += o.Sleep * scale
	c.Idle += o.Idle * scale
	c.Tx += o.Tx * scale
	c.Rx += o.Rx * scale
}

type NodeConsumption struct {
	NodeId NodeId                 `json:"node"`
	Radios map[string]Consumption `json:"radios"`
	Total  float64                `json:"total"`
}

type NetworkConsumption struct {
	Timestamp uint64
	Consumption
}
