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
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/radiomodel"
	. "github.com/uwsn/uansim/types"
)

const (
	dataChannelName   = "data"
	wakeupChannelName = "wakeup"
)

type KpiManager struct {
	sim           *Simulation
	data          *Kpi
	startCounters NodeCountersStore
	curCounters   NodeCountersStore
	startChannels map[string]radiomodel.ChannelStats
	curChannels   RadioStatsStore
	isRunning     bool
}

type NodeCountersStore map[NodeId]NodeCounters
type RadioStatsStore map[string]KpiChannel

// NewKpiManager creates a new KPI manager/bookkeeper for a particular simulation.
func NewKpiManager() *KpiManager {
	km := &KpiManager{}
	return km
}

// Init inits the KPI manager for the given simulation.
func (km *KpiManager) Init(sim *Simulation) {
	logger.AssertNil(km.sim)
	logger.AssertFalse(km.isRunning)
	km.sim = sim
	km.data = &Kpi{
		Status: "ok",
		RunId:  sim.cfg.RunId,
		Seed:   sim.cfg.Seed,
	}
	km.startCounters = NodeCountersStore{}
	km.curCounters = NodeCountersStore{}
}

// Start begins a KPI period at the current simulation time.
func (km *KpiManager) Start() {
	logger.AssertNotNil(km.sim)
	km.startCounters = km.retrieveNodeCounters()
	km.startChannels = km.retrieveChannelStats()
	km.data.TimeUs.StartTimeUs = km.sim.d.Now()
	km.isRunning = true
}

// Stop ends the KPI period and saves the KPI file.
func (km *KpiManager) Stop() {
	if km.isRunning {
		km.update()
		km.isRunning = false
		km.SaveDefaultFile()
	}
}

func (km *KpiManager) IsRunning() bool {
	return km.isRunning
}

// Data returns the KPIs up to the current time.
func (km *KpiManager) Data() *Kpi {
	if km.isRunning {
		km.update()
	}
	return km.data
}

func (km *KpiManager) SaveDefaultFile() {
	if err := km.SaveFile(km.getDefaultSaveFileName()); err != nil {
		logger.Errorf("%v", err)
	}
}

func (km *KpiManager) SaveFile(fn string) error {
	logger.AssertNotNil(km.sim)
	if km.isRunning {
		km.update()
	}

	km.data.FileTime = time.Now().Format(time.RFC3339)
	json, err := json.MarshalIndent(km.data, "", "    ")
	if err != nil {
		logger.Fatalf("Could not marshal KPI JSON data: %v", err)
		return err
	}

	if err = os.WriteFile(fn, json, 0644); err != nil {
		return errors.Wrapf(err, "could not write KPI JSON file %s", fn)
	}
	return nil
}

func (km *KpiManager) update() {
	km.curCounters = km.retrieveNodeCounters()
	km.curRadioStats()
	km.calculateKpis()
}

func (km *KpiManager) stopNode(nodeid NodeId) {
	// deleted nodes during a KPI period won't be used anymore in final node-specific KPI calculations.
	delete(km.startCounters, nodeid)
	delete(km.curCounters, nodeid)
}

func (km *KpiManager) retrieveNodeCounters() NodeCountersStore {
	nodes := km.sim.GetNodes()
	nodesMap := make(NodeCountersStore, len(nodes))
	for _, nid := range nodes {
		nodesMap[nid] = km.sim.nodes[nid].GetCounters()
		km.sim.nodes[nid].DisplayPendingLogEntries()
	}
	return nodesMap
}

func (km *KpiManager) retrieveChannelStats() map[string]radiomodel.ChannelStats {
	ret := map[string]radiomodel.ChannelStats{
		dataChannelName: *km.sim.medium.GetChannelStats(),
	}
	if km.sim.wuMedium != nil {
		ret[wakeupChannelName] = *km.sim.wuMedium.GetChannelStats()
	}
	return ret
}

func (km *KpiManager) curRadioStats() {
	km.curChannels = make(RadioStatsStore)
	passedTime := km.sim.d.Now() - km.data.TimeUs.StartTimeUs

	for name, stats := range km.retrieveChannelStats() {
		start := km.startChannels[name]
		chanKpi := KpiChannel{
			NumTx:        stats.NumTxStarted - start.NumTxStarted,
			BusyTimeUs:   stats.BusyTimeUs - start.BusyTimeUs,
			NumArrivals:  stats.NumArrivals - start.NumArrivals,
			NumCorrupted: stats.NumCorrupted - start.NumCorrupted,
			NumLost:      stats.NumLost - start.NumLost,
		}
		if passedTime > 0 {
			chanKpi.BusyPercentage = percentage(chanKpi.BusyTimeUs, passedTime)
			chanKpi.AvgFps = 1.0e6 * float64(chanKpi.NumTx) / float64(passedTime)
		}
		km.curChannels[name] = chanKpi
	}
}

func (km *KpiManager) calculateKpis() {
	// time
	km.data.TimeUs.EndTimeUs = km.sim.d.Now()
	km.data.TimeUs.PeriodUs = km.data.TimeUs.EndTimeUs - km.data.TimeUs.StartTimeUs
	km.data.TimeSec.StartTimeSec = UsToSeconds(km.data.TimeUs.StartTimeUs)
	km.data.TimeSec.EndTimeSec = UsToSeconds(km.data.TimeUs.EndTimeUs)
	km.data.TimeSec.PeriodSec = UsToSeconds(km.data.TimeUs.PeriodUs)

	// channels
	km.data.Channels = km.curChannels

	// traffic
	km.data.Traffic = km.sim.traffic.Stats(km.data.TimeUs.PeriodUs)

	// counters
	km.data.Mac.Protocol = km.sim.cfg.Mac.Protocol.String()
	km.data.Mac.Wakeup = km.sim.cfg.Mac.UsesWakeup()
	km.data.Mac.QueueDropPercentage = make(map[NodeId]float64)
	km.data.Counters = make(map[NodeId]NodeCounters)
	km.data.Totals = NodeCounters{}
	for nid, ctr := range km.curCounters {
		counters := countersSince(ctr, km.startCounters[nid])
		offered := counters["mac.enqueued"] + counters["mac.queue_drops"]
		km.data.Mac.QueueDropPercentage[nid] = percentage(counters["mac.queue_drops"], offered)
		km.data.Counters[nid] = counters
		km.data.Totals.Add(counters)
	}

	// energy
	km.data.Energy = KpiEnergy{Nodes: make(map[NodeId]float64)}
	for _, nid := range km.sim.GetNodes() {
		ne := km.sim.energyAnalyser.GetNode(nid)
		if ne == nil {
			continue
		}
		ne.ComputeRadioState(km.data.TimeUs.EndTimeUs)
		total := ne.Consumption().Total
		km.data.Energy.Nodes[nid] = total
		km.data.Energy.TotalJoules += total
	}

	if km.sim.ctx.Err() != nil {
		km.data.Status = "interrupted"
	}
}

func (km *KpiManager) getDefaultSaveFileName() string {
	return filepath.Join(km.sim.cfg.OutputDir, km.sim.cfg.RunId+"_kpi.json")
}
