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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwsn/uansim/mac"
	"github.com/uwsn/uansim/progctx"
	. "github.com/uwsn/uansim/types"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.RunId = "test"
	cfg.OutputDir = t.TempDir()
	cfg.RadioModel = "Ideal"
	cfg.Duration = 300
	cfg.Nodes = []NodeConfig{
		{ID: 1, Z: 1, Role: RoleSink},
		{ID: 2, X: 300, Z: 1, Role: RoleSource},
	}
	cfg.Traffic.Mode = TrafficNode
	cfg.Traffic.MeanInterval = 60
	return cfg
}

func newTestSimulation(t *testing.T, cfg *Config) (*Simulation, *progctx.ProgCtx) {
	ctx := progctx.New(context.Background())
	s, err := NewSimulation(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, ctx
}

func readKpi(t *testing.T, cfg *Config) *Kpi {
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, cfg.RunId+"_kpi.json"))
	require.NoError(t, err)
	kpi := &Kpi{}
	require.NoError(t, json.Unmarshal(data, kpi))
	return kpi
}

func TestSimulation_FamaRun(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestSimulation(t, cfg)
	assert.Equal(t, []NodeId{1, 2}, s.GetNodes())
	assert.Equal(t, 1, s.Sink())

	require.NoError(t, s.Run())
	assert.Equal(t, SecondsToUs(300), s.Now())

	stats := s.TrafficStats()
	assert.True(t, stats.Generated >= 1)
	assert.True(t, stats.Received >= 1)
	assert.True(t, stats.Received <= stats.Accepted)
	assert.Equal(t, uint64(0), stats.Duplicates)
	assert.True(t, stats.AvgDelaySec > 0)

	s.Stop()
	assert.True(t, s.IsStopped())
	kpi := readKpi(t, cfg)
	assert.Equal(t, "ok", kpi.Status)
	assert.Equal(t, "test", kpi.RunId)
	assert.Equal(t, "fama", kpi.Mac.Protocol)
	assert.False(t, kpi.Mac.Wakeup)
	assert.Equal(t, stats.Received, kpi.Traffic.Received)
	assert.Equal(t, 300.0, kpi.TimeSec.PeriodSec)
	require.Contains(t, kpi.Counters, 2)
	assert.Equal(t, stats.Received, kpi.Counters[1]["app.received"])
	assert.True(t, kpi.Totals["mac.tx_data"] >= 1)
	assert.True(t, kpi.Channels["data"].NumTx >= 4)
	assert.NotContains(t, kpi.Channels, "wakeup")
	assert.True(t, kpi.Energy.Nodes[2] > 0)
	assert.InDelta(t, kpi.Energy.Nodes[1]+kpi.Energy.Nodes[2], kpi.Energy.TotalJoules, 1e-9)

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "test_energy.txt"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "test_energy_nodes.txt"))
	assert.ErrorIs(t, s.Go(1000), ErrStopped)
}

func TestSimulation_Deterministic(t *testing.T) {
	run := func(dir string) (PacketStats, map[NodeId]NodeCounters) {
		cfg := DefaultConfig()
		cfg.RunId = "det"
		cfg.OutputDir = dir
		cfg.Seed = 11
		cfg.Topology = TopologyConfig{NumNodes: 6, Boundary: 200, Depth: 25, SinkDepth: 1}
		cfg.Traffic.MeanInterval = 5
		cfg.Duration = 120
		s, err := NewSimulation(progctx.New(context.Background()), cfg)
		require.NoError(t, err)
		require.NoError(t, s.Run())
		counters := map[NodeId]NodeCounters{}
		for _, id := range s.GetNodes() {
			counters[id] = s.GetNode(id).GetCounters()
		}
		stats := s.TrafficStats()
		s.Stop()
		return stats, counters
	}

	stats1, counters1 := run(t.TempDir())
	stats2, counters2 := run(t.TempDir())
	assert.True(t, stats1.Generated > 0)
	assert.Equal(t, stats1, stats2)
	assert.Equal(t, counters1, counters2)
}

func TestSimulation_AddDeleteNode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.Mode = TrafficOff
	s, _ := newTestSimulation(t, cfg)

	_, err := s.AddNode(NodeConfig{ID: 2})
	assert.True(t, errors.Is(err, ErrNodeExists))
	_, err = s.AddNode(NodeConfig{ID: 0})
	assert.Error(t, err)

	assert.True(t, errors.Is(s.DeleteNode(9), ErrUnknownNode))
	require.NoError(t, s.DeleteNode(1))
	assert.Equal(t, InvalidNodeId, s.Sink())
	assert.Equal(t, []NodeId{2}, s.GetNodes())
	assert.Nil(t, s.GetEnergyAnalyser().GetNode(1))

	node, err := s.AddNode(NodeConfig{ID: 5, X: 100, Role: RoleSink})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Sink())
	assert.Equal(t, RoleSink, node.Role())
	assert.Equal(t, mac.ProtocolFama, node.Mac().Protocol())
	assert.Nil(t, node.WakeupPhy())
	assert.Len(t, s.ExportNodes(), 2)
	assert.Equal(t, s.ExportNodes(), s.ExportConfig().Nodes)
}

func TestSimulation_Send(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.Mode = TrafficOff
	s, _ := newTestSimulation(t, cfg)

	require.NoError(t, s.Send(2, NodeAddress(1), 20))
	assert.True(t, errors.Is(s.Send(7, NodeAddress(1), 20), ErrUnknownNode))
	require.NoError(t, s.Go(SecondsToUs(30)))

	stats := s.TrafficStats()
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Received)
	counters := s.GetNode(1).GetCounters()
	assert.Equal(t, uint64(1), counters["app.received"])
	assert.Equal(t, uint64(1), counters["mac.delivered"])
	assert.Equal(t, uint64(1), s.GetNode(2).GetCounters()["app.generated"])
	assert.Equal(t, "IDLE", s.GetNode(2).Mac().State())
}

func TestSimulation_QueueFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.Mode = TrafficOff
	s, _ := newTestSimulation(t, cfg)

	for i := 0; i < cfg.Mac.QueueCapacity; i++ {
		require.NoError(t, s.Send(2, NodeAddress(1), 20))
	}
	assert.Error(t, s.Send(2, NodeAddress(1), 20))
	assert.Equal(t, uint64(1), s.TrafficStats().Rejected)
	assert.Equal(t, uint64(1), s.GetNode(2).GetCounters()["mac.queue_drops"])
}

func TestSimulation_Interrupted(t *testing.T) {
	cfg := testConfig(t)
	s, ctx := newTestSimulation(t, cfg)
	require.NoError(t, s.Go(SecondsToUs(10)))
	ctx.Cancel("test")
	assert.ErrorIs(t, s.Go(SecondsToUs(10)), ErrInterrupted)
	assert.Equal(t, SecondsToUs(10), s.Now())

	s.Stop()
	assert.Equal(t, "interrupted", readKpi(t, cfg).Status)
}

func TestSimulation_TLohiUltraWakeup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.Mode = TrafficOff
	cfg.Mac = mac.DefaultConfig(mac.ProtocolTLohi)
	cfg.Mac.Ultra = true
	s, _ := newTestSimulation(t, cfg)

	require.NotNil(t, s.GetNode(1).WakeupPhy())
	require.NoError(t, s.Send(2, NodeAddress(1), 20))
	require.NoError(t, s.Go(SecondsToUs(60)))

	assert.Equal(t, uint64(1), s.TrafficStats().Received)
	channels := s.ChannelStats()
	require.Contains(t, channels, "wakeup")
	assert.True(t, channels["wakeup"].NumTxStarted >= 2)
	assert.True(t, s.GetNode(2).GetCounters()["wuphy.tx_frames"] >= 1)
	assert.True(t, s.GetNode(1).Phy().IsSleeping())

	s.Stop()
	kpi := readKpi(t, cfg)
	assert.True(t, kpi.Mac.Wakeup)
	assert.Contains(t, kpi.Channels, "wakeup")
}

func TestSimulation_NetworkTraffic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Nodes = append(cfg.Nodes,
		NodeConfig{ID: 3, X: 100, Y: 100, Z: 25, Role: RoleSource},
		NodeConfig{ID: 4, X: 200, Y: 50, Z: 25, Role: RolePassive},
	)
	cfg.Traffic.Mode = TrafficNetwork
	cfg.Traffic.MeanInterval = 2
	s, _ := newTestSimulation(t, cfg)
	require.NoError(t, s.Go(SecondsToUs(60)))

	stats := s.TrafficStats()
	assert.True(t, stats.Generated > 1)
	gen2 := s.traffic.NodeTraffic(2).Generated
	gen3 := s.traffic.NodeTraffic(3).Generated
	assert.Equal(t, stats.Generated, gen2+gen3)
	assert.Equal(t, uint64(0), s.traffic.NodeTraffic(1).Generated)
	assert.Equal(t, uint64(0), s.traffic.NodeTraffic(4).Generated)
}

func TestSimulation_MaxBytes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.MeanInterval = 1
	cfg.Traffic.MaxBytes = 40
	s, _ := newTestSimulation(t, cfg)
	require.NoError(t, s.Go(SecondsToUs(60)))

	assert.Equal(t, uint64(2), s.TrafficStats().Generated)
	assert.True(t, s.GetNode(2).App().Exhausted())
	assert.False(t, s.GetNode(2).App().IsRunning())
}

func TestSimulation_NoSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Nodes[0].Role = RoleSource
	_, err := NewSimulation(progctx.New(context.Background()), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Nodes[0].Role = RoleSource
	cfg.Traffic.Destination = DestinationBroadcast
	s, _ := newTestSimulation(t, cfg)
	assert.Equal(t, BroadcastAddress, s.trafficDestination())
}

func TestSimulation_Pcap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Traffic.Mode = TrafficOff
	cfg.Pcap = "mac"
	s, _ := newTestSimulation(t, cfg)
	require.NoError(t, s.Send(2, NodeAddress(1), 20))
	require.NoError(t, s.Go(SecondsToUs(30)))
	s.Stop()

	info, err := os.Stat(filepath.Join(cfg.OutputDir, "test_mac.pcap"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(150))
}

func TestSimulation_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RadioModel = "Bellhop"
	_, err := NewSimulation(nil, cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Duration = -1
	_, err = NewSimulation(nil, cfg)
	assert.Error(t, err)
}

func TestSimulation_GeneratedRunId(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunId = ""
	cfg.Traffic.Mode = TrafficOff
	s, _ := newTestSimulation(t, cfg)
	assert.Len(t, s.GetConfig().RunId, 8)
}
