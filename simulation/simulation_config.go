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
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/energy"
	"github.com/uwsn/uansim/mac"
	"github.com/uwsn/uansim/pcap"
	"github.com/uwsn/uansim/phy"
)

const (
	DefaultDuration   = 1800.0 // seconds
	DefaultOutputDir  = "tmp"
	DefaultRadioModel = "MutualInterference"
	DefaultSoundSpeed = 1500.0 // m/s
	DefaultRadioRange = 5000.0 // m
)

// EnergyConfig holds the power figures of the two radios of a node.
type EnergyConfig struct {
	Modem  energy.PowerConfig `yaml:"modem"`
	Wakeup energy.PowerConfig `yaml:"wakeup"`
}

// Config is the full description of a simulation run. Times are in seconds.
type Config struct {
	RunId           string         `yaml:"runId"`
	Seed            int64          `yaml:"seed"`
	Duration        float64        `yaml:"duration"`
	OutputDir       string         `yaml:"outputDir"`
	RadioModel      string         `yaml:"radioModel"`
	SoundSpeed      float64        `yaml:"soundSpeed"`
	RadioRange      float64        `yaml:"radioRange"`
	PacketErrorRate float64        `yaml:"packetErrorRate"`
	Phy             phy.Config     `yaml:"phy"`
	WakeupPhy       phy.Config     `yaml:"wakeupPhy"`
	Mac             mac.Config     `yaml:"mac"`
	Energy          EnergyConfig   `yaml:"energy"`
	Traffic         TrafficConfig  `yaml:"traffic"`
	Topology        TopologyConfig `yaml:"topology"`
	Nodes           []NodeConfig   `yaml:"nodes,omitempty"`
	Pcap            string         `yaml:"pcap"`
	NodeLogFile     bool           `yaml:"nodeLogFile"`
}

func DefaultConfig() *Config {
	return &Config{
		Seed:            1,
		Duration:        DefaultDuration,
		OutputDir:       DefaultOutputDir,
		RadioModel:      DefaultRadioModel,
		SoundSpeed:      DefaultSoundSpeed,
		RadioRange:      DefaultRadioRange,
		PacketErrorRate: 0,
		Phy:             phy.DefaultConfig(),
		WakeupPhy:       phy.DefaultWakeupConfig(),
		Mac:             mac.DefaultConfig(mac.ProtocolFama),
		Energy: EnergyConfig{
			Modem:  energy.DefaultModemPower(),
			Wakeup: energy.DefaultWakeupPower(),
		},
		Traffic:  DefaultTrafficConfig(),
		Topology: DefaultTopologyConfig(),
		Pcap:     pcap.FrameTypeOffStr,
	}
}

// LoadConfigFile reads a YAML config file on top of the defaults.
func LoadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", filename)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data on top of the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfigFile writes cfg as YAML.
func SaveConfigFile(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0644), "write config %s", filename)
}

func (cfg *Config) Validate() error {
	if cfg.Duration <= 0 {
		return errors.Errorf("duration must be positive, got %v", cfg.Duration)
	}
	if cfg.SoundSpeed <= 0 {
		return errors.Errorf("soundSpeed must be positive, got %v", cfg.SoundSpeed)
	}
	if cfg.RadioRange <= 0 {
		return errors.Errorf("radioRange must be positive, got %v", cfg.RadioRange)
	}
	if cfg.PacketErrorRate < 0 || cfg.PacketErrorRate >= 1 {
		return errors.Errorf("packetErrorRate must be in [0,1), got %v", cfg.PacketErrorRate)
	}
	if len(cfg.Phy.DataRates) == 0 || len(cfg.WakeupPhy.DataRates) == 0 {
		return errors.Errorf("phy needs at least one data rate")
	}
	for _, r := range append(append([]uint32{}, cfg.Phy.DataRates...), cfg.WakeupPhy.DataRates...) {
		if r == 0 {
			return errors.Errorf("data rates must be positive")
		}
	}
	if err := cfg.Mac.Validate(); err != nil {
		return errors.Wrap(err, "mac")
	}
	if err := cfg.Traffic.Validate(); err != nil {
		return errors.Wrap(err, "traffic")
	}
	if err := cfg.Topology.Validate(); err != nil {
		return errors.Wrap(err, "topology")
	}
	for _, n := range cfg.Nodes {
		if err := n.Validate(); err != nil {
			return errors.Wrapf(err, "node %d", n.ID)
		}
	}
	if pcap.ParseFrameTypeStr(cfg.Pcap) == pcap.FrameTypeUnknown {
		return errors.Errorf("unknown pcap type %q", cfg.Pcap)
	}
	return nil
}
