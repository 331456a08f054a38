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
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/energy"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/pcap"
	"github.com/uwsn/uansim/prng"
	"github.com/uwsn/uansim/progctx"
	"github.com/uwsn/uansim/radiomodel"
	. "github.com/uwsn/uansim/types"
)

// goBatchUs is the simulated time run between two checks of the program context.
const goBatchUs uint64 = 1000000

type Simulation struct {
	ctx            *progctx.ProgCtx
	cfg            *Config
	stopped        bool
	d              *dispatcher.Dispatcher
	gen            *prng.Generator
	medium         radiomodel.RadioModel
	wuMedium       radiomodel.RadioModel
	nodes          map[NodeId]*Node
	sink           NodeId
	traffic        *trafficTracker
	trafficTimer   *dispatcher.Timer
	trafficRng     *prng.Stream
	trafficStarted bool
	energyAnalyser *energy.EnergyAnalyser
	energyTimer    *dispatcher.Timer
	kpiMgr         *KpiManager
	pcap           pcap.File
}

// NewSimulation creates a simulation with the nodes of cfg, ready to run from time 0.
func NewSimulation(ctx *progctx.ProgCtx, cfg *Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = progctx.New(context.Background())
	}
	if cfg.RunId == "" {
		cfg.RunId = uuid.NewString()[:8]
	}

	s := &Simulation{
		ctx:            ctx,
		cfg:            cfg,
		d:              dispatcher.NewDispatcher(),
		gen:            prng.New(cfg.Seed),
		nodes:          map[NodeId]*Node{},
		traffic:        newTrafficTracker(),
		energyAnalyser: energy.NewEnergyAnalyser(),
		kpiMgr:         NewKpiManager(),
	}
	logger.Infof("simulation %s: protocol %v, radio model %s, seed %d", cfg.RunId, cfg.Mac.Protocol,
		cfg.RadioModel, cfg.Seed)

	if err := s.createOutputDir(); err != nil {
		return nil, err
	}
	if err := s.createMedia(); err != nil {
		return nil, err
	}
	if err := s.createPcap(); err != nil {
		return nil, err
	}

	s.energyAnalyser.SetTitle(cfg.RunId + "_energy")
	s.energyTimer = dispatcher.NewTimer(s.d, "energy", s.storeEnergy)
	s.energyTimer.Restart(energy.ComputePeriod)

	s.trafficRng = s.gen.Stream("traffic")
	s.trafficTimer = dispatcher.NewTimer(s.d, "traffic", s.generateNetworkTraffic)

	nodes, err := cfg.BuildTopology(s.gen.Stream("topology"))
	if err != nil {
		s.closePcap()
		return nil, err
	}
	for _, nc := range nodes {
		if _, err := s.AddNode(nc); err != nil {
			s.Stop()
			return nil, err
		}
	}
	if err := s.checkTrafficDestination(); err != nil {
		s.Stop()
		return nil, err
	}

	s.kpiMgr.Init(s)
	s.kpiMgr.Start()
	s.startTraffic()
	logger.SetSimClock(s.d.Now)
	return s, nil
}

func (s *Simulation) createOutputDir() error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0775); err != nil {
		return errors.Wrapf(err, "create output directory %s", s.cfg.OutputDir)
	}
	// output of an earlier run with the same id
	n, err := removeRunFiles(s.cfg.OutputDir, s.cfg.RunId)
	if n > 0 {
		logger.Debugf("removed %d old output files of run %s", n, s.cfg.RunId)
	}
	return errors.Wrap(err, "clean output directory")
}

func (s *Simulation) createMedia() error {
	params := &radiomodel.RadioModelParams{
		SoundSpeed:      s.cfg.SoundSpeed,
		RadioRange:      s.cfg.RadioRange,
		PacketErrorRate: s.cfg.PacketErrorRate,
	}
	var err error
	if s.medium, err = radiomodel.NewRadioModel(s.cfg.RadioModel, s.d, params, s.gen.Stream("medium")); err != nil {
		return err
	}
	if s.cfg.Mac.UsesWakeup() {
		wuParams := *params
		if s.wuMedium, err = radiomodel.NewRadioModel(s.cfg.RadioModel, s.d, &wuParams, s.gen.Stream("wu-medium")); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) createPcap() error {
	frameType := pcap.ParseFrameTypeStr(s.cfg.Pcap)
	if frameType == pcap.FrameTypeOff {
		return nil
	}
	var err error
	fn := filepath.Join(s.cfg.OutputDir, s.cfg.RunId+"_"+s.cfg.Pcap+".pcap")
	if s.pcap, err = pcap.NewFile(fn, frameType, true); err != nil {
		return errors.Wrapf(err, "create pcap file %s", fn)
	}
	s.medium.SetTxObserver(s.capture(DataChannel))
	if s.wuMedium != nil {
		s.wuMedium.SetTxObserver(s.capture(WakeupChannel))
	}
	return nil
}

func (s *Simulation) capture(ch ChannelId) radiomodel.TxObserver {
	return func(ts uint64, sig *radiomodel.Signal) {
		err := s.pcap.AppendFrame(pcap.Frame{
			Timestamp:  ts,
			Data:       sig.Data,
			Channel:    ch,
			Src:        sig.Src,
			Kind:       uint8(sig.Kind),
			Marker:     uint8(sig.Marker),
			DurationUs: sig.Duration,
		})
		if err != nil {
			logger.Errorf("pcap: %v", err)
		}
	}
}

func (s *Simulation) closePcap() {
	if s.pcap == nil {
		return
	}
	if err := s.pcap.Close(); err != nil {
		logger.Errorf("closing pcap file failed: %v", err)
	}
	s.pcap = nil
	s.medium.SetTxObserver(nil)
	if s.wuMedium != nil {
		s.wuMedium.SetTxObserver(nil)
	}
}

func (s *Simulation) storeEnergy() {
	s.energyAnalyser.StoreNetworkEnergy(s.d.Now())
	s.energyTimer.Restart(energy.ComputePeriod)
}

// AddNode creates a node and adds it to the media. A source added while traffic runs starts
// generating at once.
func (s *Simulation) AddNode(cfg NodeConfig) (*Node, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.nodes[cfg.ID] != nil {
		return nil, errors.Wrapf(ErrNodeExists, "node %d", cfg.ID)
	}

	logger.Debugf("simulation:AddNode: %+v", cfg)
	node, err := newNode(s, cfg)
	if err != nil {
		logger.Errorf("simulation add node failed: %v", err)
		s.energyAnalyser.DeleteNode(cfg.ID)
		return nil, err
	}
	s.nodes[cfg.ID] = node
	if cfg.Role == RoleSink && (s.sink == InvalidNodeId || cfg.ID < s.sink) {
		s.sink = cfg.ID
	}
	if s.trafficStarted && s.cfg.Traffic.Mode == TrafficNode && cfg.Role == RoleSource {
		node.app.Start(0)
	}
	node.DisplayPendingLogEntries()
	return node, nil
}

func (s *Simulation) DeleteNode(nodeid NodeId) error {
	node := s.nodes[nodeid]
	if node == nil {
		return errors.Wrapf(ErrUnknownNode, "node %d", nodeid)
	}
	if s.kpiMgr.IsRunning() {
		s.kpiMgr.stopNode(nodeid)
	}
	node.dispose()
	delete(s.nodes, nodeid)
	s.energyAnalyser.DeleteNode(nodeid)
	logger.ReleaseNodeLogger(nodeid)

	if nodeid == s.sink {
		s.sink = InvalidNodeId
		for _, id := range s.GetNodes() {
			if s.nodes[id].Role() == RoleSink {
				s.sink = id
				break
			}
		}
	}
	return nil
}

func (s *Simulation) Nodes() map[NodeId]*Node {
	return s.nodes
}

func (s *Simulation) GetNode(nodeid NodeId) *Node {
	return s.nodes[nodeid]
}

// GetNodes returns a sorted array of NodeIds.
func (s *Simulation) GetNodes() []NodeId {
	keys := make([]NodeId, 0, len(s.nodes))
	for key := range s.nodes {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (s *Simulation) VisitNodesInOrder(cb func(node *Node)) {
	for _, nodeid := range s.GetNodes() {
		cb(s.nodes[nodeid])
	}
}

// Sink returns the id of the traffic sink, or InvalidNodeId.
func (s *Simulation) Sink() NodeId {
	return s.sink
}

func (s *Simulation) checkTrafficDestination() error {
	if s.cfg.Traffic.Mode == TrafficOff || s.cfg.Traffic.Destination != DestinationSink {
		return nil
	}
	if len(s.sources()) > 0 && s.sink == InvalidNodeId {
		return errors.Errorf("traffic destination is the sink, but there is no sink node")
	}
	return nil
}

func (s *Simulation) trafficDestination() Address {
	if s.cfg.Traffic.Destination == DestinationBroadcast || s.sink == InvalidNodeId {
		return BroadcastAddress
	}
	return NodeAddress(s.sink)
}

func (s *Simulation) sources() []NodeId {
	var ids []NodeId
	for _, id := range s.GetNodes() {
		if s.nodes[id].Role() == RoleSource {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Simulation) startTraffic() {
	offset := SecondsToUs(s.cfg.Traffic.StartOffset)
	switch s.cfg.Traffic.Mode {
	case TrafficNode:
		for _, id := range s.sources() {
			s.nodes[id].app.Start(offset)
		}
	case TrafficNetwork:
		s.trafficTimer.Restart(offset)
	default:
		return
	}
	s.trafficStarted = true
}

func (s *Simulation) stopTraffic() {
	s.trafficTimer.Cancel()
	for _, node := range s.nodes {
		node.app.Stop()
	}
	s.trafficStarted = false
}

// generateNetworkTraffic sends the packets of one generation cycle from a random source.
func (s *Simulation) generateNetworkTraffic() {
	tc := s.cfg.Traffic
	if sources := s.sources(); len(sources) > 0 {
		app := s.nodes[sources[s.trafficRng.UniformInt(0, len(sources))]].app
		if !app.Exhausted() {
			for i := 0; i < tc.PktsPerTime; i++ {
				app.Send(s.trafficDestination(), tc.PacketSize)
			}
		}
	}
	s.trafficTimer.Restart(SecondsToUs(s.trafficRng.Exponential(tc.MeanInterval, tc.MaxInterval)))
}

// Send hands a packet of size bytes from node src to the MAC, addressed to dst.
func (s *Simulation) Send(src NodeId, dst Address, size int) error {
	node := s.nodes[src]
	if node == nil {
		return errors.Wrapf(ErrUnknownNode, "node %d", src)
	}
	if !node.app.Send(dst, size) {
		return errors.Errorf("node %d: MAC refused the packet (queue %d/%d)", src, node.mac.QueueLen(),
			s.cfg.Mac.QueueCapacity)
	}
	return nil
}

// Go runs the simulation for duration us. It returns ErrInterrupted if the program context is
// canceled first. A duration of Ever runs until cancellation or until no events are left.
func (s *Simulation) Go(duration uint64) error {
	if s.stopped {
		return ErrStopped
	}
	end := s.d.Now() + duration
	if duration == Ever || end < s.d.Now() {
		end = Ever
	}
	defer s.displayPendingLogEntries()

	for {
		if s.ctx.Err() != nil {
			return ErrInterrupted
		}
		if end == Ever && s.d.NextTimestamp() == Ever {
			return nil
		}
		batchEnd := s.d.Now() + goBatchUs
		if batchEnd > end || batchEnd < s.d.Now() {
			batchEnd = end
		}
		s.d.RunUntil(batchEnd)
		s.displayPendingLogEntries()
		if batchEnd >= end {
			return nil
		}
	}
}

// Run runs the simulation until the configured duration is reached.
func (s *Simulation) Run() error {
	end := SecondsToUs(s.cfg.Duration)
	if s.d.Now() >= end {
		return nil
	}
	return s.Go(end - s.d.Now())
}

func (s *Simulation) displayPendingLogEntries() {
	s.VisitNodesInOrder(func(node *Node) {
		node.DisplayPendingLogEntries()
	})
}

// Stop ends the simulation: it saves the KPI and energy files, closes the capture and releases
// the nodes. It is safe to call more than once.
func (s *Simulation) Stop() {
	if s.stopped {
		return
	}
	logger.Infof("stopping simulation at %d us", s.d.Now())
	s.stopped = true

	s.stopTraffic()
	s.energyTimer.Cancel()
	s.kpiMgr.Stop()

	now := s.d.Now()
	s.energyAnalyser.StoreNetworkEnergy(now)
	if err := s.energyAnalyser.SaveEnergyDataToFile(s.cfg.OutputDir, "", now); err != nil {
		logger.Errorf("%v", err)
	}
	s.closePcap()

	for _, id := range s.GetNodes() {
		s.nodes[id].dispose()
		logger.ReleaseNodeLogger(id)
	}
	logger.Debugf("all simulation nodes stopped.")
	logger.SetSimClock(nil)
}

func (s *Simulation) IsStopped() bool {
	return s.stopped
}

func (s *Simulation) Dispatcher() *dispatcher.Dispatcher {
	return s.d
}

// Now returns the current simulation time in us.
func (s *Simulation) Now() uint64 {
	return s.d.Now()
}

func (s *Simulation) GetConfig() *Config {
	return s.cfg
}

func (s *Simulation) GetEnergyAnalyser() *energy.EnergyAnalyser {
	return s.energyAnalyser
}

func (s *Simulation) GetKpiManager() *KpiManager {
	return s.kpiMgr
}

// TrafficStats returns the end-to-end statistics since the start of the run.
func (s *Simulation) TrafficStats() PacketStats {
	return s.traffic.Stats(s.d.Now())
}

// ChannelStats returns the usage statistics of the data and, if present, the wakeup medium.
func (s *Simulation) ChannelStats() map[string]radiomodel.ChannelStats {
	ret := map[string]radiomodel.ChannelStats{dataChannelName: *s.medium.GetChannelStats()}
	if s.wuMedium != nil {
		ret[wakeupChannelName] = *s.wuMedium.GetChannelStats()
	}
	return ret
}
