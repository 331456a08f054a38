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
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/exp/slices"
	"golang.org/x/term"
)

//go:embed README.md
var cliReference string

var markdownLinkPattern = regexp.MustCompile(`\(#[a-z]+\)`)

type helpTopic struct {
	summary string
	lines   []string
}

// Help renders the command reference embedded from README.md.
type Help struct {
	width  uint
	column uint
	topics map[string]*helpTopic
	order  []string
}

func newHelp() Help {
	h := Help{
		width:  80,
		column: 10,
		topics: make(map[string]*helpTopic),
	}
	h.load(cliReference)
	return h
}

// load reads the "### <command>" sections of the reference. Code blocks become
// indented Definition and Example paragraphs.
func (help *Help) load(doc string) {
	var cur *helpTopic
	indent := ""
	for _, raw := range strings.Split(doc, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "### "):
			name := strings.TrimSpace(line[4:])
			cur = &helpTopic{}
			help.topics[name] = cur
			help.order = append(help.order, name)
			if w := uint(len(name)); w > help.column {
				help.column = w
			}
			indent = ""
			continue
		case strings.HasPrefix(line, "## "):
			cur = nil
			continue
		case cur == nil:
			continue
		case line == "```shell":
			cur.lines = append(cur.lines, "", "Definition:")
			indent = "  "
			continue
		case line == "```bash":
			cur.lines = append(cur.lines, "", "Example:")
			indent = "  "
			continue
		case line == "```":
			indent = ""
			continue
		}

		text := strings.ReplaceAll(line, "\\", "")
		text = markdownLinkPattern.ReplaceAllString(text, "")
		if cur.summary == "" && indent == "" {
			cur.summary = text
			if dot := strings.Index(text, "."); dot > 0 {
				cur.summary = text[:dot+1]
			}
		}
		cur.lines = append(cur.lines, indent+text)
	}
	slices.Sort(help.order)
}

func (help *Help) fitTerminal() {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	if w, _, err := term.GetSize(fd); err == nil && w > int(help.column)+20 {
		help.width = uint(w)
	}
}

func (help *Help) outputGeneralHelp() string {
	var sb strings.Builder
	for _, name := range help.order {
		fmt.Fprintf(&sb, "%-*s %s\n", int(help.column), name, help.topics[name].summary)
	}
	sb.WriteString(wordwrap.WrapString("\nFor detailed help per command, use: 'help <command>'\n", help.width))
	return sb.String()
}

func (help *Help) outputCommandHelp(name string) string {
	help.fitTerminal()
	topic, ok := help.topics[name]
	if !ok {
		return fmt.Sprintf("  (Non-existent command '%s'; 'help' lists all commands.)\n", name)
	}

	var sb strings.Builder
	sb.WriteString(name + "\n")
	wrapAt := help.width - help.column - 1
	for _, line := range topic.lines {
		// code lines keep their layout
		if strings.HasPrefix(line, "  ") {
			sb.WriteString("  " + line + "\n")
			continue
		}
		for _, part := range strings.Split(wordwrap.WrapString(line, wrapAt), "\n") {
			sb.WriteString("  " + part + "\n")
		}
	}
	return sb.String()
}
