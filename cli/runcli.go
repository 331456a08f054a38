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
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"github.com/uwsn/uansim/logger"
)

type CliHandler interface {
	HandleCommand(cmd string, output io.Writer) error
	GetPrompt() string
}

type CliOptions struct {
	EchoInput   bool
	HistoryFile string
	Stdin       *os.File
	Stdout      *os.File
}

func DefaultCliOptions() *CliOptions {
	return &CliOptions{
		HistoryFile: "/tmp/uansim-cmds.tmp",
	}
}

func (o *CliOptions) withDefaults() *CliOptions {
	if o == nil {
		o = DefaultCliOptions()
	}
	res := *o
	if res.Stdin == nil {
		res.Stdin = os.Stdin
	}
	if res.Stdout == nil {
		res.Stdout = os.Stdout
	}
	return &res
}

// CliInstance is the singleton CLI instance. It reads command lines with readline and hands
// them to a CliHandler until EOF, Ctrl-C on an empty line, or a handler error.
type CliInstance struct {
	Started chan struct{}
	Options *CliOptions
	rl      *readline.Instance
	closed  chan struct{}
}

var Cli = newCliInstance()

func newCliInstance() *CliInstance {
	return &CliInstance{
		Started: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// OnStdout redraws the prompt after log output was written to the terminal.
func (cli *CliInstance) OnStdout() {
	if cli.rl != nil {
		cli.rl.Refresh()
	}
}

// Stop closes the CLI input and waits until Run has returned.
func (cli *CliInstance) Stop() {
	<-cli.Started
	// readline can block in Close(), so interrupt the pending Readline with ETX and let Run close it.
	_, _ = cli.Options.Stdin.WriteString("\003\n")
	_ = cli.Options.Stdin.Close()
	<-cli.closed
	logger.Tracef("cli stopped")
}

// saveTermState saves the state of f if it is a terminal and returns the function restoring it.
func saveTermState(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !readline.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := readline.GetState(fd)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = readline.Restore(fd, state)
	}, nil
}

func (cli *CliInstance) Run(handler CliHandler, options *CliOptions) error {
	defer logger.Debugf("CLI exit.")
	defer close(cli.closed)

	options = options.withDefaults()
	cli.Options = options

	l, err := cli.open(handler, options)
	close(cli.Started)
	if err != nil {
		return err
	}
	defer l.restore()
	defer func() {
		_ = l.Close()
	}()
	return cli.loop(l.Instance, handler, options)
}

type cliReadline struct {
	*readline.Instance
	restore func()
}

func (cli *CliInstance) open(handler CliHandler, options *CliOptions) (*cliReadline, error) {
	restoreIn, err := saveTermState(options.Stdin)
	if err != nil {
		return nil, err
	}
	restoreOut, err := saveTermState(options.Stdout)
	if err != nil {
		restoreIn()
		return nil, err
	}
	restore := func() {
		restoreOut()
		restoreIn()
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          handler.GetPrompt(),
		HistoryFile:     options.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           options.Stdin,
		Stdout:          options.Stdout,

		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			// block CtrlZ feature
			if r == readline.CharCtrlZ {
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		restore()
		return nil, err
	}
	cli.rl = l
	return &cliReadline{Instance: l, restore: restore}, nil
}

func (cli *CliInstance) loop(l *readline.Instance, handler CliHandler, options *CliOptions) error {
	stdout := options.Stdout
	for {
		l.SetPrompt(handler.GetPrompt())
		line, err := l.Readline()

		if len(line) > 0 && line[0] == readline.CharInterrupt {
			return nil
		} else if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue // Ctrl-C in midline edit only cancels the present cmd line.
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if options.EchoInput {
			if _, err := stdout.WriteString(line + "\n"); err != nil {
				return err
			}
		}

		cmd := strings.TrimSpace(line)
		if len(cmd) == 0 || strings.HasPrefix(cmd, "#") {
			continue
		}

		err = handler.HandleCommand(cmd, l.Stdout())
		_ = stdout.Sync()
		if err != nil {
			return err
		}
	}
}
