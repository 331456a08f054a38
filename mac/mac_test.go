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

package mac

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/uwsn/uansim/dispatcher"
	"github.com/uwsn/uansim/frame"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/prng"
	. "github.com/uwsn/uansim/types"
)

func TestParseProtocol(t *testing.T) {
	for name, want := range map[string]Protocol{
		"fama":     ProtocolFama,
		"FAMA":     ProtocolFama,
		"tlohi":    ProtocolTLohi,
		"t-lohi":   ProtocolTLohi,
		"maca":     ProtocolMaca,
		"aloha-cs": ProtocolAlohaCS,
		"alohacs":  ProtocolAlohaCS,
		"aloha":    ProtocolAlohaCS,
		" cw ":     ProtocolCW,
	} {
		p, err := ParseProtocol(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p, name)
	}

	_, err := ParseProtocol("csma")
	assert.True(t, errors.Is(err, ErrUnknownProtocol))
	assert.Equal(t, "tlohi", ProtocolTLohi.String())
	assert.Equal(t, "unknown", Protocol(99).String())
}

func TestConfig_YamlDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("protocol: aloha-cs\ncw: 4\n"), &cfg))
	assert.Equal(t, ProtocolAlohaCS, cfg.Protocol)
	assert.Equal(t, 4, cfg.CW)
	assert.Equal(t, 0.05, cfg.SlotTime)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	require.NoError(t, cfg.Validate())

	cfg = Config{}
	require.NoError(t, yaml.Unmarshal([]byte("useAck: false\n"), &cfg))
	assert.Equal(t, ProtocolFama, cfg.Protocol)
	assert.Equal(t, 0.47, cfg.MaxPropDelay)
	assert.False(t, cfg.UseAck)

	out, err := yaml.Marshal(DefaultConfig(ProtocolTLohi))
	require.NoError(t, err)
	assert.Contains(t, string(out), "protocol: tlohi")

	cfg = Config{}
	assert.Error(t, yaml.Unmarshal([]byte("protocol: csma\n"), &cfg))
}

func TestConfig_Validate(t *testing.T) {
	for _, p := range []Protocol{ProtocolFama, ProtocolTLohi, ProtocolMaca, ProtocolAlohaCS, ProtocolCW} {
		cfg := DefaultConfig(p)
		assert.NoError(t, cfg.Validate(), p.String())
	}

	cfg := DefaultConfig(ProtocolMaca)
	cfg.MaxBEB = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig(ProtocolFama)
	cfg.QueueCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig(ProtocolTLohi)
	assert.False(t, cfg.UsesWakeup())
	cfg.Ultra = true
	assert.True(t, cfg.UsesWakeup())
}

func TestNew_UnknownProtocol(t *testing.T) {
	d := dispatcher.NewDispatcher()
	cfg := DefaultConfig(ProtocolFama)
	cfg.Protocol = Protocol(42)
	_, err := New(cfg, 1, Deps{
		Sched: d,
		Rng:   prng.New(1).Stream("mac"),
		Log:   logger.GetNodeLogger(t.TempDir(), "macunit", 1, false, d.Now),
	})
	assert.True(t, errors.Is(err, ErrUnknownProtocol))
}

func TestSendQueue(t *testing.T) {
	q := newSendQueue(2)
	assert.True(t, q.IsEmpty())
	assert.Nil(t, q.Front())
	assert.Nil(t, q.Pop())

	f1 := frame.NewData(1, 2, []byte{1})
	f2 := frame.NewData(1, 3, []byte{2})
	assert.True(t, q.Push(f1))
	assert.True(t, q.Push(f2))
	assert.True(t, q.IsFull())
	assert.False(t, q.Push(frame.NewData(1, 4, nil)))
	assert.Equal(t, 2, q.Len())

	assert.Same(t, f1, q.Front())
	assert.Same(t, f1, q.Pop())
	assert.Same(t, f2, q.Front())
	q.Clear()
	assert.True(t, q.IsEmpty())
}

func TestEngine_QueueBound(t *testing.T) {
	for _, p := range []Protocol{ProtocolFama, ProtocolTLohi, ProtocolMaca, ProtocolAlohaCS, ProtocolCW} {
		t.Run(p.String(), func(t *testing.T) {
			_, eng, _ := newFakeEngine(t, DefaultConfig(p), 1)
			for i := 0; i < DefaultQueueCapacity; i++ {
				assert.True(t, eng.Enqueue([]byte{byte(i)}, 2))
			}
			assert.False(t, eng.Enqueue([]byte{0xff}, 2))
			assert.Equal(t, DefaultQueueCapacity, eng.QueueLen())

			c := eng.Counters()
			assert.Equal(t, uint64(DefaultQueueCapacity), c.Enqueued)
			assert.Equal(t, uint64(1), c.QueueDrops)
		})
	}
}

func TestEngine_EnqueueWithoutPhy(t *testing.T) {
	d := dispatcher.NewDispatcher()
	eng, err := New(DefaultConfig(ProtocolCW), 1, Deps{
		Sched: d,
		Rng:   prng.New(1).Stream("mac"),
		Log:   logger.GetNodeLogger(t.TempDir(), "macunit", 1, false, d.Now),
	})
	require.NoError(t, err)
	assert.False(t, eng.Enqueue([]byte{1}, 2))
	assert.Equal(t, 0, eng.QueueLen())
}

func TestEngine_Dispose(t *testing.T) {
	for _, p := range []Protocol{ProtocolFama, ProtocolTLohi, ProtocolMaca, ProtocolAlohaCS, ProtocolCW} {
		t.Run(p.String(), func(t *testing.T) {
			d, eng, _ := newFakeEngine(t, DefaultConfig(p), 1)
			require.True(t, eng.Enqueue([]byte{1, 2, 3}, 2))
			d.Go(10000)

			eng.Dispose()
			eng.Dispose()
			assert.Empty(t, eng.PendingTimers())
			assert.Equal(t, 0, eng.QueueLen())
			assert.False(t, eng.Enqueue([]byte{4}, 2))
			d.Go(100 * 1000000)
		})
	}
}

func TestEngine_Address(t *testing.T) {
	_, eng, _ := newFakeEngine(t, DefaultConfig(ProtocolMaca), 3)
	assert.Equal(t, Address(3), eng.GetAddress())
	eng.SetAddress(9)
	assert.Equal(t, Address(9), eng.GetAddress())
	assert.Equal(t, ProtocolMaca, eng.Protocol())
	assert.Equal(t, "IDLE", eng.State())
}

func TestCounters_Add(t *testing.T) {
	a := Counters{TxData: 1, Delivered: 2}
	a.Add(Counters{TxData: 3, Timeouts: 4})
	assert.Equal(t, uint64(4), a.TxData)
	assert.Equal(t, uint64(2), a.Delivered)
	assert.Equal(t, uint64(4), a.Timeouts)

	m := a.Map("mac.")
	assert.Len(t, m, 13)
	assert.Equal(t, uint64(4), m["mac.tx_data"])
	assert.Equal(t, uint64(2), m["mac.delivered"])
}
