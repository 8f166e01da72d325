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

// Package indirect implements the indirect-flow analyser: one actor reads a
// target and writes an intermediate object, a second actor reads that
// object.
package indirect

import (
	"context"
	"sort"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/stategraph"
)

// Name of the analyser.
const Name = "flow/indirect"

// Analyzer searches for target leaks through intermediate objects.
type Analyzer struct{}

// New returns the indirect-flow analyser.
func New() flow.Analyzer { return &Analyzer{} }

// Name of the analyser.
func (*Analyzer) Name() string { return Name }

// Version of the analyser.
func (*Analyzer) Version() int { return 0 }

// Analyze checks every configured (writer, reader, target) triple: objects
// writable after the writer has read the target, filtered down to those some
// state reachable by the reader can read. Each finding carries both the
// writing and the reading traces.
func (*Analyzer) Analyze(ctx context.Context, g *stategraph.Graph, req *flow.Request) ([]*flow.Finding, error) {
	var findings []*flow.Finding
	for _, tr := range req.Triples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		writeObjs := g.ReachableWriteObjects(tr.Source, tr.Target)
		if len(writeObjs) == 0 {
			continue
		}
		readerReach := g.ReachableStatesE(tr.Reader)

		objs := make([]string, 0, len(writeObjs))
		for obj := range writeObjs {
			objs = append(objs, obj)
		}
		sort.Strings(objs)

		for _, obj := range objs {
			f := &flow.Finding{
				Analyzer:    Name,
				Entry:       tr.Source,
				Target:      tr.Target,
				Object:      obj,
				WriteTraces: writeObjs[obj],
			}
			for s, steps := range readerReach {
				if g.Read(s, obj) {
					f.States = append(f.States, s)
					f.Traces = append(f.Traces, flow.Trace{Steps: steps, Final: s})
				}
			}
			if len(f.States) > 0 {
				sortStates(f)
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}

func sortStates(f *flow.Finding) {
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
