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

import . "github.com/uwsn/uansim/types"

type KpiTimeUs struct {
	StartTimeUs uint64 `json:"start"`
	EndTimeUs   uint64 `json:"end"`
	PeriodUs    uint64 `json:"duration"`
}

type KpiTimeSec struct {
	StartTimeSec float64 `json:"start"`
	EndTimeSec   float64 `json:"end"`
	PeriodSec    float64 `json:"duration"`
}

type KpiChannel struct {
	NumTx          uint64  `json:"tx_frames"`
	AvgFps         float64 `json:"tx_avg_fps"`
	BusyTimeUs     uint64  `json:"busy_time_us"`
	BusyPercentage float64 `json:"busy_percent"`
	NumArrivals    uint64  `json:"arrivals"`
	NumCorrupted   uint64  `json:"corrupted"`
	NumLost        uint64  `json:"lost"`
}

type KpiMac struct {
	Protocol            string             `json:"protocol"`
	Wakeup              bool               `json:"wakeup"`
	QueueDropPercentage map[NodeId]float64 `json:"queue_drop_percent"`
}

type KpiEnergy struct {
	TotalJoules float64            `json:"total_joules"`
	Nodes       map[NodeId]float64 `json:"nodes"`
}

type Kpi struct {
	FileTime string                  `json:"created"`
	Status   string                  `json:"status"`
	RunId    string                  `json:"run_id"`
	Seed     int64                   `json:"seed"`
	TimeUs   KpiTimeUs               `json:"time_us"`
	TimeSec  KpiTimeSec              `json:"time_sec"`
	Channels map[string]KpiChannel   `json:"channels"`
	Traffic  PacketStats             `json:"traffic"`
	Mac      KpiMac                  `json:"mac"`
	Counters map[NodeId]NodeCounters `json:"counters"`
	Totals   NodeCounters            `json:"totals"`
	Energy   KpiEnergy               `json:"energy"`
}
