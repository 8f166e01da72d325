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

// Package writeexec implements the write-execute flow analyser: an object
// both writable and executable along paths from a single entry point.
package writeexec

import (
	"context"
	"sort"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/stategraph"
)

// Name of the analyser.
const Name = "flow/write-exec"

// Analyzer searches for objects an entry point can both write and execute.
type Analyzer struct{}

// New returns the write-execute flow analyser.
func New() flow.Analyzer { return &Analyzer{} }

// Name of the analyser.
func (*Analyzer) Name() string { return Name }

// Version of the analyser.
func (*Analyzer) Version() int { return 0 }

// Analyze intersects, per entry point, the objects writable and the objects
// executable somewhere along the entry point's reachable states, reporting
// each with its writing and executing traces.
func (*Analyzer) Analyze(ctx context.Context, g *stategraph.Graph, req *flow.Request) ([]*flow.Finding, error) {
	var findings []*flow.Finding
	for _, entry := range req.EntryPoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		writes := g.TraceToPerm(entry, 'w')
		if len(writes) == 0 {
			continue
		}
		execs := g.TraceToPerm(entry, 'x')

		objs := make([]string, 0, len(writes))
		for obj := range writes {
			if _, ok := execs[obj]; ok {
				objs = append(objs, obj)
			}
		}
		sort.Strings(objs)

		for _, obj := range objs {
			findings = append(findings, &flow.Finding{
				Analyzer:    Name,
				Entry:       entry,
				Object:      obj,
				WriteTraces: writes[obj],
				ExecTraces:  execs[obj],
			})
		}
	}
	return findings, nil
}
