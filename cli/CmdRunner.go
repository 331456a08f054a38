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

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/progctx"
	"github.com/uwsn/uansim/simulation"
	. "github.com/uwsn/uansim/types"
)

const (
	Prompt = "> "
)

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

func (cc *CommandContext) outputAsYaml(item interface{}) {
	data, err := yaml.Marshal(item)
	logger.PanicIfError(err)

	_, err = cc.output.Write(data)
	logger.PanicIfError(err)
}

// CmdRunner executes CLI commands against a simulation. Commands run synchronously in the
// caller's goroutine, so the CLI is the only driver of the simulation while it is active.
type CmdRunner struct {
	sim  *simulation.Simulation
	ctx  *progctx.ProgCtx
	help Help
}

func NewCmdRunner(ctx *progctx.ProgCtx, sim *simulation.Simulation) *CmdRunner {
	return &CmdRunner{
		ctx:  ctx,
		sim:  sim,
		help: newHelp(),
	}
}

// RunCommand parses and executes one command line, writing results to output. It returns
// non-nil once the program context is done.
func (rt *CmdRunner) RunCommand(cmdline string, output io.Writer) error {
	if rt.ctx.Err() == nil {
		cmd := Command{}

		if err := parseBytes([]byte(cmdline), &cmd); err != nil {
			if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
				return err
			}
		} else {
			rt.execute(&cmd, output)
		}
	}
	return rt.ctx.Err()
}

func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	return rt.RunCommand(cmdline, output)
}

func (rt *CmdRunner) GetPrompt() string {
	return Prompt
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	cc := &CommandContext{
		Context: rt.ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	if cmd.Exit == nil && rt.sim.IsStopped() {
		cc.error(simulation.ErrStopped)
		return
	}

	if cmd.Add != nil {
		rt.executeAddNode(cc, cmd.Add)
	} else if cmd.Counters != nil {
		rt.executeCounters(cc, cmd.Counters)
	} else if cmd.Del != nil {
		rt.executeDelNode(cc, cmd.Del)
	} else if cmd.Energy != nil {
		rt.executeEnergy(cc, cmd.Energy)
	} else if cmd.Exit != nil {
		rt.executeExit(cc, cmd.Exit)
	} else if cmd.Go != nil {
		rt.executeGo(cc, cmd.Go)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Kpi != nil {
		rt.executeKpi(cc, cmd.Kpi)
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Node != nil {
		rt.executeNode(cc, cmd.Node)
	} else if cmd.Nodes != nil {
		rt.executeLsNodes(cc, cmd.Nodes)
	} else if cmd.RadioModel != nil {
		rt.executeRadioModel(cc, cmd.RadioModel)
	} else if cmd.Save != nil {
		rt.executeSave(cc, cmd.Save)
	} else if cmd.Send != nil {
		rt.executeSend(cc, cmd.Send)
	} else if cmd.Stats != nil {
		rt.executeStats(cc, cmd.Stats)
	} else if cmd.Time != nil {
		rt.executeTime(cc, cmd.Time)
	} else if cmd.Unwatch != nil {
		rt.executeUnwatch(cc, cmd.Unwatch)
	} else if cmd.Watch != nil {
		rt.executeWatch(cc, cmd.Watch)
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

// parseGoDuration parses a 'go' duration; a bare number is taken as seconds.
func parseGoDuration(s string) (uint64, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, err = time.ParseDuration(s + "s")
		if err != nil {
			return 0, errors.Errorf("could not parse time duration: %s", s)
		}
	}
	if d < 0 {
		return 0, errors.Errorf("negative time duration: %s", s)
	}
	return uint64(d / time.Microsecond), nil
}

func (rt *CmdRunner) executeGo(cc *CommandContext, cmd *GoCmd) {
	if cmd.Ever != nil {
		cc.error(rt.sim.Go(Ever))
		return
	}
	us, err := parseGoDuration(cmd.Time)
	if err != nil {
		cc.error(err)
		return
	}
	cc.error(rt.sim.Go(us))
}

func (rt *CmdRunner) executeTime(cc *CommandContext, cmd *TimeCmd) {
	cc.outputf("%d\n", rt.sim.Now())
}

func (rt *CmdRunner) getNode(sel NodeSelector) *simulation.Node {
	if sel.Id > 0 {
		return rt.sim.GetNode(sel.Id)
	}
	return nil
}

func (rt *CmdRunner) executeLsNodes(cc *CommandContext, cmd *NodesCmd) {
	rt.sim.VisitNodesInOrder(func(node *simulation.Node) {
		cfg := node.Config()
		m := node.Mac()
		cc.outputf("id=%d\trole=%s\tx=%.1f\ty=%.1f\tz=%.1f\tmac=%s\tstate=%s\tqueue=%d\n", node.Id, cfg.Role,
			cfg.X, cfg.Y, cfg.Z, m.Protocol(), m.State(), m.QueueLen())
	})
}

type nodeInfo struct {
	Config        simulation.NodeConfig   `yaml:"config"`
	Address       Address                 `yaml:"address"`
	Protocol      string                  `yaml:"protocol"`
	State         string                  `yaml:"state"`
	QueueLen      int                     `yaml:"queueLen"`
	PendingTimers []string                `yaml:"pendingTimers,flow"`
	PhySleeping   bool                    `yaml:"phySleeping"`
	Watch         string                  `yaml:"watch"`
	Traffic       simulation.NodeCounters `yaml:"counters"`
}

func (rt *CmdRunner) executeNode(cc *CommandContext, cmd *NodeCmd) {
	node := rt.getNode(cmd.Node)
	if node == nil {
		cc.errorf("node %d not found", cmd.Node.Id)
		return
	}
	m := node.Mac()
	cc.outputAsYaml(nodeInfo{
		Config:        node.Config(),
		Address:       m.GetAddress(),
		Protocol:      m.Protocol().String(),
		State:         m.State(),
		QueueLen:      m.QueueLen(),
		PendingTimers: m.PendingTimers(),
		PhySleeping:   node.Phy().IsSleeping(),
		Watch:         logger.GetLevelString(node.Logger.DisplayLevel()),
		Traffic:       node.GetCounters(),
	})
}

func (rt *CmdRunner) executeAddNode(cc *CommandContext, cmd *AddCmd) {
	logger.Debugf("Add: %#v", *cmd)
	role, err := simulation.ParseNodeRole(cmd.Role.Val)
	if err != nil {
		cc.error(err)
		return
	}

	cfg := simulation.NodeConfig{
		ID:   rt.nextNodeId(),
		Role: role,
	}
	if cmd.Id != nil {
		cfg.ID = cmd.Id.Val
	}
	if cmd.X != nil {
		cfg.X = *cmd.X
	}
	if cmd.Y != nil {
		cfg.Y = *cmd.Y
	}
	if cmd.Z != nil {
		cfg.Z = *cmd.Z
	}
	if cmd.RadioRange != nil {
		cfg.RadioRange = float64(cmd.RadioRange.Val)
	}

	node, err := rt.sim.AddNode(cfg)
	if err != nil {
		cc.error(err)
		return
	}
	cc.outputf("%d\n", node.Id)
}

// nextNodeId returns the lowest free node id.
func (rt *CmdRunner) nextNodeId() NodeId {
	nodes := rt.sim.Nodes()
	for id := 1; id <= MaxNodeId; id++ {
		if _, ok := nodes[id]; !ok {
			return id
		}
	}
	return InvalidNodeId
}

func (rt *CmdRunner) executeDelNode(cc *CommandContext, cmd *DelCmd) {
	for _, id := range getUniqueAndSorted(cmd.Nodes) {
		if rt.sim.GetNode(id) == nil {
			cc.outputf("Warn: node %d not found, skipping\n", id)
			continue
		}
		if err := rt.sim.DeleteNode(id); err != nil {
			cc.errorf("node %d, %+v", id, err)
		}
	}
}

func (rt *CmdRunner) executeSend(cc *CommandContext, cmd *SendCmd) {
	if rt.getNode(cmd.Src) == nil {
		cc.errorf("src node %d not found", cmd.Src.Id)
		return
	}

	var dst Address
	switch {
	case cmd.Broadcast != nil:
		dst = BroadcastAddress
	case cmd.Dst != nil:
		if rt.getNode(*cmd.Dst) == nil {
			cc.errorf("dst node %d not found", cmd.Dst.Id)
			return
		}
		dst = NodeAddress(cmd.Dst.Id)
	default:
		sink := rt.sim.Sink()
		if sink == InvalidNodeId {
			cc.errorf("no sink node in the network")
			return
		}
		dst = NodeAddress(sink)
	}

	size := rt.sim.GetConfig().Traffic.PacketSize
	if cmd.DataSize != nil {
		size = cmd.DataSize.Val
	}
	cc.error(rt.sim.Send(cmd.Src.Id, dst, size))
}

func (rt *CmdRunner) executeCounters(cc *CommandContext, cmd *CountersCmd) {
	var counters simulation.NodeCounters
	if cmd.Node != nil {
		node := rt.getNode(*cmd.Node)
		if node == nil {
			cc.errorf("node %d not found", cmd.Node.Id)
			return
		}
		counters = node.GetCounters()
	} else {
		counters = simulation.NodeCounters{}
		rt.sim.VisitNodesInOrder(func(node *simulation.Node) {
			counters.Add(node.GetCounters())
		})
	}

	for _, name := range counters.SortedKeys() {
		cc.outputf("%-30s %d\n", name, counters[name])
	}
}

func (rt *CmdRunner) executeStats(cc *CommandContext, cmd *StatsCmd) {
	cc.outputAsYaml(rt.sim.TrafficStats())
	channels := rt.sim.ChannelStats()
	for _, name := range []string{"data", "wakeup"} {
		st, ok := channels[name]
		if !ok {
			continue
		}
		cc.outputf("channel %-6s tx=%d arrivals=%d corrupted=%d lost=%d busy=%.3fs\n", name,
			st.NumTxStarted, st.NumArrivals, st.NumCorrupted, st.NumLost, UsToSeconds(st.BusyTimeUs))
	}
}

func (rt *CmdRunner) executeKpi(cc *CommandContext, cmd *KpiCmd) {
	if cmd.Save != nil {
		fn := cmd.File
		if fn == "" {
			cfg := rt.sim.GetConfig()
			fn = filepath.Join(cfg.OutputDir, cfg.RunId+"_kpi.json")
		}
		cc.error(rt.sim.GetKpiManager().SaveFile(fn))
		return
	}
	kpi := rt.sim.GetKpiManager().Data()
	cc.outputf("time=%.3fs status=%s\n", kpi.TimeSec.PeriodSec, kpi.Status)
	cc.outputAsYaml(kpi.Traffic)
	cc.outputf("energy=%.3fJ\n", kpi.Energy.TotalJoules)
}

func (rt *CmdRunner) executeEnergy(cc *CommandContext, cmd *EnergyCmd) {
	if cmd.Save == nil {
		cc.outputf("energy <command>\n")
		cc.outputf("\tsave [output name]\n")
		return
	}
	now := rt.sim.Now()
	ea := rt.sim.GetEnergyAnalyser()
	ea.StoreNetworkEnergy(now)
	cc.error(ea.SaveEnergyDataToFile(rt.sim.GetConfig().OutputDir, cmd.Name, now))
}

func (rt *CmdRunner) executeRadioModel(cc *CommandContext, cmd *RadioModelCmd) {
	cfg := rt.sim.GetConfig()
	cc.outputf("model=%s soundSpeed=%.1f radioRange=%.1f per=%v\n", cfg.RadioModel, cfg.SoundSpeed,
		cfg.RadioRange, cfg.PacketErrorRate)
}

func (rt *CmdRunner) executeSave(cc *CommandContext, cmd *SaveCmd) {
	cc.error(simulation.SaveConfigFile(rt.sim.ExportConfig(), cmd.File))
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevelString(logger.GetLevel()))
		return
	}
	level, err := logger.ParseLevelString(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(level)
}

// isWatched reports whether node log entries below error level are displayed.
func isWatched(node *simulation.Node) bool {
	return node.Logger.DisplayLevel() > logger.ErrorLevel
}

func (rt *CmdRunner) executeWatch(cc *CommandContext, cmd *WatchCmd) {
	level := logger.DefaultLevel
	if len(cmd.Level) > 0 {
		var err error
		if level, err = logger.ParseLevelString(cmd.Level); err != nil {
			cc.error(err)
			return
		}
	}

	var ids []NodeId
	switch {
	case cmd.All != "" && len(cmd.Nodes) > 0:
		cc.errorf("watch: unsupported combination of command options")
		return
	case cmd.All != "":
		ids = rt.sim.GetNodes()
	case len(cmd.Nodes) > 0:
		ids = getUniqueAndSorted(cmd.Nodes)
	case len(cmd.Level) > 0:
		cc.errorf("watch: no nodes given")
		return
	default:
		var watched []string
		rt.sim.VisitNodesInOrder(func(node *simulation.Node) {
			if isWatched(node) {
				watched = append(watched, fmt.Sprintf("%d", node.Id))
			}
		})
		cc.outputf("%s\n", strings.Join(watched, " "))
		return
	}

	if level == logger.OffLevel {
		level = logger.ErrorLevel
	}
	for _, id := range ids {
		node := rt.sim.GetNode(id)
		if node == nil {
			cc.errorf("node %d not found", id)
			continue
		}
		node.Logger.SetDisplayLevel(level)
	}
}

func (rt *CmdRunner) executeUnwatch(cc *CommandContext, cmd *UnwatchCmd) {
	// if no node-number(s) given, unwatch all.
	ids := getUniqueAndSorted(cmd.Nodes)
	if len(ids) == 0 {
		ids = rt.sim.GetNodes()
	}
	for _, id := range ids {
		node := rt.sim.GetNode(id)
		if node == nil {
			cc.outputf("Warn: node %d not found, skipping\n", id)
			continue
		}
		node.Logger.SetDisplayLevel(logger.ErrorLevel)
	}
}

func (rt *CmdRunner) executeExit(cc *CommandContext, cmd *ExitCmd) {
	rt.ctx.Cancel("exit")
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) > 0 {
		cc.outputStr(rt.help.outputCommandHelp(cmd.HelpTopic))
	} else {
		cc.outputStr(rt.help.outputGeneralHelp())
	}
}
