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

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevelString(t *testing.T) {
	lv, err := ParseLevelString("debug")
	assert.Nil(t, err)
	assert.Equal(t, DebugLevel, lv)

	lv, err = ParseLevelString("W")
	assert.Nil(t, err)
	assert.Equal(t, WarnLevel, lv)

	lv, err = ParseLevelString("none")
	assert.Nil(t, err)
	assert.Equal(t, OffLevel, lv)

	lv, err = ParseLevelString("blah")
	assert.NotNil(t, err)
	assert.Equal(t, DefaultLevel, lv)

	for _, lv := range []Level{TraceLevel, DebugLevel, InfoLevel, NoteLevel, WarnLevel, ErrorLevel, OffLevel} {
		parsed, err := ParseLevelString(GetLevelString(lv))
		assert.Nil(t, err)
		assert.Equal(t, lv, parsed)
	}
}

func TestSetLevel(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLevel())
	Debugf("not shown %d", 1)
}

func TestAssertHelpersPanic(t *testing.T) {
	assert.True(t, AssertTrue(true))
	assert.Panics(t, func() {
		AssertTrue(false)
	})
	assert.Panics(t, func() {
		AssertNotNil(nil)
	})
}

func TestNodeLoggerFile(t *testing.T) {
	dir := t.TempDir()
	var now uint64 = 1234
	nl := GetNodeLogger(dir, "run1", 42, true, func() uint64 { return now })
	defer ReleaseNodeLogger(42)

	nl.SetDisplayLevel(OffLevel)
	nl.SetFileLevel(DebugLevel)
	nl.Debugf("hello %s", "mac")
	now = 5678
	nl.Tracef("dropped")
	NodeLogf(42, InfoLevel, "state %d", 3)
	nl.DisplayPendingLogEntries()
	nl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "run1_42.log"))
	assert.Nil(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "1234 debug hello mac"))
	assert.True(t, strings.Contains(content, "5678 info state 3"))
	assert.False(t, strings.Contains(content, "dropped"))
}

func TestSimTimePrefix(t *testing.T) {
	defer SetSimClock(nil)

	assert.Equal(t, "", simTimePrefix())
	SetSimClock(func() uint64 { return 12345678 })
	assert.Equal(t, "[  12.345678] ", simTimePrefix())
	Infof("with sim time")
}

func TestSetOutput(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "out.log")
	assert.Nil(t, SetOutput([]string{"stderr", fn}))
	defer func() {
		assert.Nil(t, SetOutput([]string{"stderr"}))
	}()

	old := GetLevel()
	defer SetLevel(old)
	SetLevel(InfoLevel)
	Warnf("to file %d", 7)
	_ = zaplogger.Sync()

	data, err := os.ReadFile(fn)
	assert.Nil(t, err)
	assert.True(t, strings.Contains(string(data), "to file 7"))

	assert.NotNil(t, SetOutput([]string{filepath.Join(t.TempDir(), "nodir", "x.log")}))
}

func TestPanicNotFiltered(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)
	SetLevel(OffLevel)

	assert.Panics(t, func() {
		PanicIfError(os.ErrNotExist, "reading")
	})
	assert.NotPanics(t, func() {
		PanicIfError(nil)
	})
}

func TestLevelNames(t *testing.T) {
	lv, err := ParseLevelString("Warning")
	assert.Nil(t, err)
	assert.Equal(t, WarnLevel, lv)

	lv, err = ParseLevelString("crit")
	assert.Nil(t, err)
	assert.Equal(t, ErrorLevel, lv)
	assert.Equal(t, "error", GetLevelString(ErrorLevel))

	_, err = ParseLevelString("t")
	assert.NotNil(t, err)
	assert.Equal(t, "level(42)", GetLevelString(Level(42)))
}
