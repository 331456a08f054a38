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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/uwsn/uansim/types"
)

// NodeLogger is a node-specific log object. Levels and output file can be set per individual node.
type NodeLogger struct {
	Id           NodeId
	fileLevel    Level
	displayLevel Level

	logFile       *os.File
	logFileName   string
	isFileEnabled bool
	entries       chan nodeLogEntry
	clock         func() uint64
}

type nodeLogEntry struct {
	logEntry
	timestampUs uint64
}

var (
	nodeLogs = make(map[NodeId]*NodeLogger, 10)
	mutex    = sync.Mutex{}
)

// GetNodeLogger gets the NodeLogger instance for the given (output dir, run ID, node) and configures it.
// The clock supplies the simulation time that is stamped on each entry.
func GetNodeLogger(outputDir string, runId string, nodeid NodeId, fileEnabled bool, clock func() uint64) *NodeLogger {
	mutex.Lock()
	defer mutex.Unlock()

	nl, ok := nodeLogs[nodeid]
	if !ok {
		nl = &NodeLogger{
			Id:            nodeid,
			fileLevel:     DebugLevel,
			displayLevel:  ErrorLevel,
			entries:       make(chan nodeLogEntry, 1000),
			logFileName:   getLogFileName(outputDir, runId, nodeid),
			isFileEnabled: fileEnabled,
			clock:         clock,
		}
		nodeLogs[nodeid] = nl
		if nl.isFileEnabled {
			nl.createLogFile()
		}
	} else {
		// if logger already exists, adjust the configuration to latest provided and open file if needed.
		nl.clock = clock
		nl.isFileEnabled = fileEnabled
		newName := getLogFileName(outputDir, runId, nodeid)
		if nl.logFile != nil && newName != nl.logFileName {
			nl.Close()
		}
		nl.logFileName = newName
		if nl.isFileEnabled && nl.logFile == nil {
			nl.createLogFile()
		}
	}
	return nl
}

// ReleaseNodeLogger flushes and closes the NodeLogger of a node, and forgets it.
func ReleaseNodeLogger(nodeid NodeId) {
	mutex.Lock()
	nl, ok := nodeLogs[nodeid]
	delete(nodeLogs, nodeid)
	mutex.Unlock()

	if ok {
		nl.DisplayPendingLogEntries()
		nl.Close()
	}
}

func getLogFileName(outputPath string, runId string, nodeId NodeId) string {
	return filepath.Join(outputPath, fmt.Sprintf("%s_%d.log", runId, nodeId))
}

func (nl *NodeLogger) createLogFile() {
	var err error
	nl.logFile, err = os.OpenFile(nl.logFileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0664)
	if err != nil {
		Errorf("creating node log file %s failed: %+v", nl.logFileName, err)
		nl.isFileEnabled = false
		nl.logFile = nil
		return
	}

	nl.writeLogFileHeader()
}

func (nl *NodeLogger) writeLogFileHeader() {
	header := fmt.Sprintf("#\n# uansim node log for node %d Created %s\n", nl.Id,
		time.Now().Format(time.RFC3339)) +
		"# SimTimeUs  Lev Message"
	_ = nl.writeToLogFile(header)
}

func (nl *NodeLogger) now() uint64 {
	if nl.clock == nil {
		return 0
	}
	return nl.clock()
}

// NodeLogf logs a formatted log message for the specific nodeid; correct NodeLogger object will be auto-found.
func NodeLogf(nodeid NodeId, level Level, format string, args ...interface{}) {
	mutex.Lock()
	nl := nodeLogs[nodeid]
	mutex.Unlock()
	if nl == nil {
		Logf(level, fmt.Sprintf("Node<%d> ", nodeid)+format, args)
		return
	}
	nl.logf(level, format, args)
}

func (nl *NodeLogger) logf(level Level, format string, args []interface{}) {
	if level > nl.fileLevel && level > nl.displayLevel {
		return
	}
	entry := nodeLogEntry{
		logEntry: logEntry{
			NodeId: nl.Id,
			Level:  level,
			Msg:    getMessage(format, args),
		},
		timestampUs: nl.now(),
	}
	select {
	case nl.entries <- entry:
		break
	default:
		nl.DisplayPendingLogEntries()
		nl.entries <- entry
	}
}

func (nl *NodeLogger) SetFileLevel(level Level) {
	nl.fileLevel = level
}

func (nl *NodeLogger) SetDisplayLevel(level Level) {
	nl.displayLevel = level
}

func (nl *NodeLogger) DisplayLevel() Level {
	return nl.displayLevel
}

func (nl *NodeLogger) Tracef(format string, args ...interface{}) {
	nl.logf(TraceLevel, format, args)
}

func (nl *NodeLogger) Debugf(format string, args ...interface{}) {
	nl.logf(DebugLevel, format, args)
}

func (nl *NodeLogger) Infof(format string, args ...interface{}) {
	nl.logf(InfoLevel, format, args)
}

func (nl *NodeLogger) Warnf(format string, args ...interface{}) {
	nl.logf(WarnLevel, format, args)
}

func (nl *NodeLogger) Errorf(format string, args ...interface{}) {
	nl.logf(ErrorLevel, format, args)
}

func (nl *NodeLogger) Error(err error) {
	if err == nil {
		return
	}
	nl.logf(ErrorLevel, "%v", []interface{}{err})
}

func (nl *NodeLogger) writeToLogFile(line string) error {
	_, err := nl.logFile.WriteString(line + "\n")
	if err != nil {
		_ = nl.logFile.Close()
		nl.logFile = nil
		nl.isFileEnabled = false
		Errorf("couldn't write to node log file (%s), closing it", nl.logFileName)
	}
	return err
}

// DisplayPendingLogEntries displays all pending log entries for the node, each prefixed with the
// simulation time at which it was logged. This includes writing any pending entries to the node log file.
func (nl *NodeLogger) DisplayPendingLogEntries() {
	nodeStr := fmt.Sprintf("Node<%d> ", nl.Id)
	for {
		select {
		case entry := <-nl.entries:
			isSaveEntry := nl.fileLevel >= entry.Level
			isDisplayEntry := nl.displayLevel >= entry.Level
			logStr := fmt.Sprintf("%11d %-4s ", entry.timestampUs, GetLevelString(entry.Level)) + entry.Msg
			// whatever is displayed (watch), will also be logged to file.
			if (isDisplayEntry || isSaveEntry) && nl.isFileEnabled && nl.logFile != nil {
				_ = nl.writeToLogFile(logStr)
			}
			if isDisplayEntry {
				logAlways(entry.Level, nodeStr+logStr)
			}
		default:
			return
		}
	}
}

// IsFileEnabled returns true if logging to file is currently enabled, false if not.
func (nl *NodeLogger) IsFileEnabled() bool {
	return nl.isFileEnabled
}

// Close closes the node log file and also saves/displays any pending entries.
func (nl *NodeLogger) Close() {
	if nl.logFile != nil {
		nl.DisplayPendingLogEntries()
		_ = nl.logFile.Close()
		nl.logFile = nil
	}
}
