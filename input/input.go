// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package input reads the operator-supplied entry-point, target and
// learn-config files.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/stategraph"
)

// ParseState decodes a role:TYPE:subject record into a state. TYPE places
// the role name in the special (S), user (U) or group (G) slot; D is the
// default role with every slot unoccupied.
func ParseState(s string) (stategraph.State, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return stategraph.State{}, fmt.Errorf("malformed state %q, want role:TYPE:subject", s)
	}
	role, typ, subject := parts[0], parts[1], parts[2]
	st := stategraph.State{
		Special: stategraph.DontCare,
		User:    stategraph.DontCare,
		Group:   stategraph.DontCare,
		Subject: subject,
	}
	switch typ {
	case "S":
		st.Special = role
	case "U":
		st.User = role
	case "G":
		st.Group = role
	case "D":
		// Default role: no slot is occupied.
	default:
		return stategraph.State{}, fmt.Errorf("malformed state %q: unknown role type %q", s, typ)
	}
	return st, nil
}

// EntryPoints reads an entry-points file: one record per line, either a
// single entry-point state or a writer state, reader state and target path
// for indirect flow analysis. Blank lines and #-comments are skipped.
func EntryPoints(r io.Reader) ([]stategraph.State, []flow.Triple, error) {
	var states []stategraph.State
	var triples []flow.Triple
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(stripComment(sc.Text()))
		switch len(fields) {
		case 0:
		case 1:
			st, err := ParseState(fields[0])
			if err != nil {
				return nil, nil, err
			}
			states = append(states, st)
		case 3:
			src, err := ParseState(fields[0])
			if err != nil {
				return nil, nil, err
			}
			rdr, err := ParseState(fields[1])
			if err != nil {
				return nil, nil, err
			}
			triples = append(triples, flow.Triple{Source: src, Reader: rdr, Target: fields[2]})
		default:
			return nil, nil, fmt.Errorf("malformed entry-point record %q, want <state> or <state> <state> <target>", sc.Text())
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return states, triples, nil
}

// Targets reads a targets file: one path per line, blank and #-comment
// lines ignored.
func Targets(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(stripComment(sc.Text()))
		if line == "" {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

// LearnConfig extracts targets from a grlearn configuration: every path
// following a read-protected-path or high-protected-path keyword.
func LearnConfig(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(stripComment(sc.Text()))
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "read-protected-path" || fields[i] == "high-protected-path" {
				targets = append(targets, fields[i+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return targets, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
