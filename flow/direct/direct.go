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

// Package direct implements the direct-flow analysers: is a target readable
// or writable from an entry point, possibly after a sequence of transitions.
package direct

import (
	"context"
	"sort"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/stategraph"
)

// Names of the two analyser variants.
const (
	ReadName  = "flow/direct-read"
	WriteName = "flow/direct-write"
)

// Analyzer searches for states reachable from an entry point in which a
// target is directly accessible in the configured mode.
type Analyzer struct {
	name string
	pred func(*stategraph.Graph, stategraph.State, string) bool
}

// NewRead returns the direct read-flow analyser.
func NewRead() flow.Analyzer {
	return &Analyzer{name: ReadName, pred: (*stategraph.Graph).Read}
}

// NewWrite returns the direct write-flow analyser.
func NewWrite() flow.Analyzer {
	return &Analyzer{name: WriteName, pred: (*stategraph.Graph).Write}
}

// Name of the analyser.
func (a *Analyzer) Name() string { return a.name }

// Version of the analyser.
func (a *Analyzer) Version() int { return 0 }

// Analyze checks every (entry point, target) pair. A target accessible at
// the entry point itself is reported with an empty trace; otherwise every
// reachable state where the predicate holds is reported with its trace.
func (a *Analyzer) Analyze(ctx context.Context, g *stategraph.Graph, req *flow.Request) ([]*flow.Finding, error) {
	var findings []*flow.Finding
	for _, entry := range req.EntryPoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var reach map[stategraph.State][]stategraph.Step
		for _, target := range req.Targets {
			if a.pred(g, entry, target) {
				findings = append(findings, &flow.Finding{
					Analyzer: a.name,
					Entry:    entry,
					Target:   target,
					States:   []stategraph.State{entry},
					Traces:   []flow.Trace{{Final: entry}},
				})
				continue
			}
			if reach == nil {
				reach = g.ReachableStatesE(entry)
			}
			f := &flow.Finding{Analyzer: a.name, Entry: entry, Target: target}
			for s, steps := range reach {
				if a.pred(g, s, target) {
					f.States = append(f.States, s)
					f.Traces = append(f.Traces, flow.Trace{Steps: steps, Final: s})
				}
			}
			if len(f.States) > 0 {
				sortFinding(f)
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}

// sortFinding orders the states (and their traces) deterministically, since
// they were collected from map iteration.
func sortFinding(f *flow.Finding) {
	idx := make([]int, len(f.States))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return f.States[idx[i]].Less(f.States[idx[j]])
	})
	states := make([]stategraph.State, len(idx))
	traces := make([]flow.Trace, len(idx))
	for i, k := range idx {
		states[i] = f.States[k]
		traces[i] = f.Traces[k]
	}
	f.States, f.Traces = states, traces
}
