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
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

// NodeRole decides what a node's application does.
type NodeRole int

const (
	RoleSource  NodeRole = iota // generates traffic
	RoleSink                    // destination of the traffic of all sources
	RolePassive                 // takes part in the MAC protocol only
)

var roleNames = map[NodeRole]string{
	RoleSource:  "source",
	RoleSink:    "sink",
	RolePassive: "passive",
}

func (r NodeRole) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

func ParseNodeRole(s string) (NodeRole, error) {
	for r, name := range roleNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return 0, errors.Errorf("unknown node role %q", s)
}

func (r NodeRole) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

func (r *NodeRole) UnmarshalYAML(value *yaml.Node) error {
	role, err := ParseNodeRole(value.Value)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// NodeConfig places one node. Coordinates are in meters, Z is depth.
type NodeConfig struct {
	ID         NodeId   `yaml:"id"`
	X          float64  `yaml:"x"`
	Y          float64  `yaml:"y"`
	Z          float64  `yaml:"z"`
	Role       NodeRole `yaml:"role"`
	RadioRange float64  `yaml:"radioRange,omitempty"`
}

func (n NodeConfig) Validate() error {
	if n.ID <= InvalidNodeId || n.ID > MaxNodeId {
		return errors.Errorf("node id must be in [1,%d]", MaxNodeId)
	}
	if n.RadioRange < 0 {
		return errors.Errorf("radioRange must not be negative")
	}
	return nil
}

// TopologyConfig describes the random deployment used when no explicit node list is given:
// one sink at the surface in the center of a square, and NumNodes-1 sources at Depth placed
// uniformly in the square.
type TopologyConfig struct {
	NumNodes  int     `yaml:"numNodes"`
	Boundary  float64 `yaml:"boundary"`
	Depth     float64 `yaml:"depth"`
	SinkDepth float64 `yaml:"sinkDepth"`
}

func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		NumNodes:  100,
		Boundary:  100,
		Depth:     25,
		SinkDepth: 1,
	}
}

func (t TopologyConfig) Validate() error {
	if t.NumNodes < 0 || t.NumNodes > MaxNodeId {
		return errors.Errorf("numNodes must be in [0,%d], got %d", MaxNodeId, t.NumNodes)
	}
	if t.Boundary < 0 {
		return errors.Errorf("boundary must not be negative")
	}
	return nil
}

// BuildTopology returns the nodes of the run: the explicit node list if there is one, or else a
// random deployment drawn from rng. Nodes are sorted by id.
func (cfg *Config) BuildTopology(rng *prng.Stream) ([]NodeConfig, error) {
	var nodes []NodeConfig
	if len(cfg.Nodes) > 0 {
		nodes = append(nodes, cfg.Nodes...)
	} else {
		nodes = randomTopology(cfg.Topology, rng)
	}

	slices.SortFunc(nodes, func(a, b NodeConfig) bool {
		return a.ID < b.ID
	})
	for i, n := range nodes {
		if err := n.Validate(); err != nil {
			return nil, errors.Wrapf(err, "node %d", n.ID)
		}
		if i > 0 && nodes[i-1].ID == n.ID {
			return nil, errors.Errorf("duplicate node id %d", n.ID)
		}
	}
	return nodes, nil
}

func randomTopology(t TopologyConfig, rng *prng.Stream) []NodeConfig {
	if t.NumNodes == 0 {
		return nil
	}
	nodes := make([]NodeConfig, 0, t.NumNodes)
	nodes = append(nodes, NodeConfig{
		ID:   1,
		X:    t.Boundary / 2,
		Y:    t.Boundary / 2,
		Z:    t.SinkDepth,
		Role: RoleSink,
	})
	for id := 2; id <= t.NumNodes; id++ {
		nodes = append(nodes, NodeConfig{
			ID:   id,
			X:    rng.Uniform(0, t.Boundary),
			Y:    rng.Uniform(0, t.Boundary),
			Z:    t.Depth,
			Role: RoleSource,
		})
	}
	return nodes
}

// sinkOf returns the lowest sink id, or InvalidNodeId if there is no sink.
func sinkOf(nodes []NodeConfig) NodeId {
	for _, n := range nodes {
		if n.Role == RoleSink {
			return n.ID
		}
	}
	return InvalidNodeId
}
