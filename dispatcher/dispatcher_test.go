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

package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/uwsn/uansim/types"
)

func TestDispatcher_OrderAndTies(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.Schedule(10, "late", func() { got = append(got, "late") })
	d.Schedule(5, "x", func() { got = append(got, "x") })
	d.Schedule(5, "y", func() { got = append(got, "y") })
	d.Schedule(0, "now", func() { got = append(got, "now") })

	n := d.RunUntil(Ever)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"now", "x", "y", "late"}, got)
	assert.Equal(t, uint64(10), d.Now())
}

func TestDispatcher_Cancel(t *testing.T) {
	d := NewDispatcher()
	fired := false
	e := d.Schedule(100, "e", func() { fired = true })
	assert.True(t, d.Cancel(e))
	assert.False(t, d.Cancel(e))
	d.Go(1000)
	assert.False(t, fired)
	assert.Equal(t, uint64(1000), d.Now())
	assert.Equal(t, uint64(1), d.Stats().NumCanceled)
}

func TestDispatcher_GoStopsAtBoundary(t *testing.T) {
	d := NewDispatcher()
	count := 0
	d.Schedule(100, "a", func() { count++ })
	d.Schedule(200, "b", func() { count++ })
	d.Schedule(201, "c", func() { count++ })

	assert.Equal(t, 2, d.Go(200))
	assert.Equal(t, 2, count)
	assert.Equal(t, uint64(200), d.Now())
	assert.Equal(t, uint64(201), d.NextTimestamp())
	assert.Equal(t, 1, d.PendingEvents())
}

func TestDispatcher_ScheduleFromCallback(t *testing.T) {
	d := NewDispatcher()
	var stamps []uint64
	d.Schedule(10, "a", func() {
		stamps = append(stamps, d.Now())
		d.Schedule(0, "b", func() { stamps = append(stamps, d.Now()) })
		d.ScheduleAt(3, "past", func() { stamps = append(stamps, d.Now()) })
	})
	d.RunUntil(Ever)
	assert.Equal(t, []uint64{10, 10, 10}, stamps)
}

func TestDispatcher_StepEmpty(t *testing.T) {
	d := NewDispatcher()
	assert.False(t, d.Step())
	assert.Equal(t, Ever, d.NextTimestamp())
}
