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

// Package prng provides the per-run random context of a simulation. All randomness of a run is
// drawn from named streams derived from one root seed, so runs with the same seed and the same
// topology are reproducible, independent of the order in which nodes are created.
package prng

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

type RandomSeed int64

// Generator is the random context of one simulation run.
type Generator struct {
	rootSeed RandomSeed
	streams  map[string]*Stream
}

// Stream is a named random number stream.
type Stream struct {
	*rand.Rand
	name string
}

// New creates a new random context, either with a fixed PRNG seed (rootSeed != 0) or a 'random'
// time-based PRNG seed (if rootSeed == 0).
func New(rootSeed int64) *Generator {
	if rootSeed == 0 {
		rootSeed = time.Now().UnixNano()
	}
	return &Generator{
		rootSeed: RandomSeed(rootSeed),
		streams:  map[string]*Stream{},
	}
}

// RootSeed returns the seed that the context was created with.
func (g *Generator) RootSeed() RandomSeed {
	return g.rootSeed
}

// Stream returns the stream with the given name, creating it on first use. The same name
// always yields the same sequence for a given root seed.
func (g *Generator) Stream(name string) *Stream {
	if s, ok := g.streams[name]; ok {
		return s
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	seed := int64(g.rootSeed) ^ int64(h.Sum64()&math.MaxInt64)
	s := &Stream{
		Rand: rand.New(rand.NewSource(seed)),
		name: name,
	}
	g.streams[name] = s
	return s
}

func (s *Stream) Name() string {
	return s.name
}

// Uniform returns a uniform random float in [min, max).
func (s *Stream) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.Float64()*(max-min)
}

// UniformInt returns a uniform random integer in [min, max). Returns min if the range is empty.
func (s *Stream) UniformInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.Intn(max-min)
}

// Exponential returns an exponentially distributed value with the given mean. If bound > 0, values
// above bound are redrawn.
func (s *Stream) Exponential(mean, bound float64) float64 {
	for {
		v := s.ExpFloat64() * mean
		if bound <= 0 || v <= bound {
			return v
		}
	}
}

// UnitRandom generates a new random unit [0, 1) float, which can be used as a random probability.
func (s *Stream) UnitRandom() float64 {
	return s.Float64()
}
