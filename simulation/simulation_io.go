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
	"github.com/pkg/errors"

	"github.com/uwsn/uansim/logger"
)

// ExportNodes exports the config of all nodes, sorted by id.
func (s *Simulation) ExportNodes() []NodeConfig {
	res := make([]NodeConfig, 0, len(s.nodes))
	s.VisitNodesInOrder(func(node *Node) {
		res = append(res, node.cfg)
	})
	return res
}

// ExportConfig returns a copy of the run config with the current nodes as explicit node list, so
// that saving and loading it reproduces the network.
func (s *Simulation) ExportConfig() *Config {
	cfg := *s.cfg
	cfg.Nodes = s.ExportNodes()
	return &cfg
}

// ImportNodes adds the given nodes. Nodes that cannot be added are skipped and reported.
func (s *Simulation) ImportNodes(nodes []NodeConfig) error {
	allOk := true
	for _, cfg := range nodes {
		if _, err := s.AddNode(cfg); err != nil {
			logger.Warnf("Warn: %s", err)
			allOk = false // continue trying to import remaining nodes
		}
	}

	if !allOk {
		return errors.Errorf("not all nodes could be imported - see error log above")
	}
	return nil
}
