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
	"strconv"

	"github.com/alecthomas/participle"
)

// noinspection GoStructTag
type Command struct {
	Add        *AddCmd        `  @@` //nolint
	Counters   *CountersCmd   `| @@` //nolint
	Del        *DelCmd        `| @@` //nolint
	Energy     *EnergyCmd     `| @@` //nolint
	Exit       *ExitCmd       `| @@` //nolint
	Go         *GoCmd         `| @@` //nolint
	Help       *HelpCmd       `| @@` //nolint
	Kpi        *KpiCmd        `| @@` //nolint
	LogLevel   *LogLevelCmd   `| @@` //nolint
	Node       *NodeCmd       `| @@` //nolint
	Nodes      *NodesCmd      `| @@` //nolint
	RadioModel *RadioModelCmd `| @@` //nolint
	Save       *SaveCmd       `| @@` //nolint
	Send       *SendCmd       `| @@` //nolint
	Stats      *StatsCmd      `| @@` //nolint
	Time       *TimeCmd       `| @@` //nolint
	Unwatch    *UnwatchCmd    `| @@` //nolint
	Watch      *WatchCmd      `| @@` //nolint
}

// noinspection GoStructTag
type GoCmd struct {
	Cmd  struct{}  `"go"`                                     //nolint
	Time string    `( @((Int|Float)["h"|"us"|"m"|"ms"|"s"]) ` //nolint
	Ever *EverFlag `| @@ )`                                   //nolint
}

// noinspection GoStructTag
type NodeSelector struct {
	Id int `@Int` //nolint
}

func (ns *NodeSelector) String() string {
	return strconv.Itoa(ns.Id)
}

// noinspection GoStructTag
type DataSizeFlag struct {
	Val int `("datasize"|"ds") @Int` //nolint
}

// noinspection GoStructTag
type SendCmd struct {
	Cmd       struct{}       `"send"`  //nolint
	Src       NodeSelector   `@@`      //nolint
	Dst       *NodeSelector  `( @@`    //nolint
	Broadcast *BroadcastFlag `| @@`    //nolint
	Sink      *SinkFlag      `| @@ )?` //nolint
	DataSize  *DataSizeFlag  `[ @@ ]`  //nolint
}

// noinspection GoStructTag
type BroadcastFlag struct {
	Dummy struct{} `("broadcast"|"bc")` //nolint
}

// noinspection GoStructTag
type SinkFlag struct {
	Dummy struct{} `"sink"` //nolint
}

// noinspection GoStructTag
type NodeCmd struct {
	Cmd  struct{}     `"node"` //nolint
	Node NodeSelector `@@`     //nolint
}

// noinspection GoStructTag
type TimeCmd struct {
	Cmd struct{} `"time"` //nolint
}

// noinspection GoStructTag
type AddCmd struct {
	Cmd        struct{}        `"add"`                //nolint
	Role       NodeRoleFlag    `@@`                   //nolint
	X          *float64        `( "x" (@Int|@Float) ` //nolint
	Y          *float64        `| "y" (@Int|@Float) ` //nolint
	Z          *float64        `| "z" (@Int|@Float) ` //nolint
	Id         *AddNodeId      `| @@`                 //nolint
	RadioRange *RadioRangeFlag `| @@ )*`              //nolint
}

// noinspection GoStructTag
type NodeRoleFlag struct {
	Val string `@("source"|"sink"|"passive")` //nolint
}

// noinspection GoStructTag
type AddNodeId struct {
	Val int `"id" @Int` //nolint
}

// noinspection GoStructTag
type RadioRangeFlag struct {
	Val int `"rr" @Int` //nolint
}

// noinspection GoStructTag
type DelCmd struct {
	Cmd   struct{}       `"del"`   //nolint
	Nodes []NodeSelector `( @@ )+` //nolint
}

// noinspection GoStructTag
type EverFlag struct {
	Dummy struct{} `"ever"` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

// noinspection GoStructTag
type EnergyCmd struct {
	Cmd  struct{}  `"energy"` //nolint
	Save *SaveFlag `( @@ )?`  //nolint
	Name string    `@String?` //nolint
}

// noinspection GoStructTag
type KpiCmd struct {
	Cmd  struct{}  `"kpi"`    //nolint
	Save *SaveFlag `( @@ )?`  //nolint
	File string    `@String?` //nolint
}

// noinspection GoStructTag
type SaveFlag struct {
	Dummy struct{} `"save"` //nolint
}

// noinspection GoStructTag
type SaveCmd struct {
	Cmd  struct{} `"save"`  //nolint
	File string   `@String` //nolint
}

// noinspection GoStructTag
type NodesCmd struct {
	Cmd struct{} `"nodes"` //nolint
}

// noinspection GoStructTag
type CountersCmd struct {
	Cmd  struct{}      `"counters"` //nolint
	Node *NodeSelector `[ @@ ]`     //nolint
}

// noinspection GoStructTag
type StatsCmd struct {
	Cmd struct{} `"stats"` //nolint
}

// noinspection GoStructTag
type RadioModelCmd struct {
	Cmd struct{} `"radiomodel"` //nolint
}

// noinspection GoStructTag
type LogLevelCmd struct {
	Cmd   struct{} `"log"`                                                                               //nolint
	Level string   `[@( "micro"|"trace"|"debug"|"info"|"note"|"warn"|"error"|"T"|"D"|"I"|"N"|"W"|"E" )]` //nolint
}

// noinspection GoStructTag
type WatchCmd struct {
	Cmd   struct{}       `"watch"`                                                                                             //nolint
	All   string         `[ @"all" ]`                                                                                          //nolint
	Nodes []NodeSelector `[ ( @@ )+ ]`                                                                                         //nolint
	Level string         `[@( "trace"|"debug"|"info"|"note"|"warn"|"error"|"crit"|"off"|"none"|"T"|"D"|"I"|"N"|"W"|"E"|"C" )]` //nolint
}

// noinspection GoStructTag
type UnwatchCmd struct {
	Cmd   struct{}       `"unwatch"`           //nolint
	Nodes []NodeSelector `( "all" | ( @@ )+ )` //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func parseBytes(b []byte, cmd *Command) error {
	return commandParser.ParseBytes(b, cmd)
}
