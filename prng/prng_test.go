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

package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamReproducible(t *testing.T) {
	g1 := New(42)
	g2 := New(42)

	// creation order must not matter
	a1 := g1.Stream("mac-1")
	b1 := g1.Stream("mac-2")
	b2 := g2.Stream("mac-2")
	a2 := g2.Stream("mac-1")

	for i := 0; i < 10; i++ {
		assert.Equal(t, a1.Float64(), a2.Float64())
		assert.Equal(t, b1.Int63(), b2.Int63())
	}
	assert.Same(t, a1, g1.Stream("mac-1"))
	assert.Equal(t, RandomSeed(42), g1.RootSeed())
}

func TestStreamRanges(t *testing.T) {
	s := New(7).Stream("test")
	for i := 0; i < 1000; i++ {
		u := s.Uniform(0.1, 0.5)
		assert.True(t, u >= 0.1 && u < 0.5)
		n := s.UniformInt(0, 3)
		assert.True(t, n >= 0 && n < 3)
		e := s.Exponential(1.0, 2.5)
		assert.True(t, e >= 0 && e <= 2.5)
		p := s.UnitRandom()
		assert.True(t, p >= 0 && p < 1)
	}
	assert.Equal(t, 0.3, s.Uniform(0.3, 0.3))
	assert.Equal(t, 2, s.UniformInt(2, 2))
}

func TestTimeSeeded(t *testing.T) {
	g := New(0)
	assert.NotEqual(t, RandomSeed(0), g.RootSeed())
}
