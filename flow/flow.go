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

// Package flow provides the interface for information-flow analyser plugins
// and the finding types they report. Analysers run over the completed
// transition graph, which they share read-only.
package flow

import (
	"context"
	"strings"

	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/stategraph"
)

// Analyzer is the interface for a flow analyser plugin.
type Analyzer interface {
	// Name of the analyser.
	Name() string
	// Version of the analyser.
	Version() int
	// Analyze searches the transition graph for flows reachable from the
	// request's entry points.
	Analyze(ctx context.Context, g *stategraph.Graph, req *Request) ([]*Finding, error)
}

// Request carries the operator-configured inputs of an analysis run.
type Request struct {
	// EntryPoints are the initial states flows are searched from.
	EntryPoints []stategraph.State
	// Triples are the (writer, reader, target) configurations for indirect
	// flow analysis.
	Triples []Triple
	// Targets are the sensitive paths.
	Targets []string
}

// Triple configures one indirect-flow search: a state that may read the
// target and leak it into an intermediate object, and a second state that
// may read that object.
type Triple struct {
	Source stategraph.State
	Reader stategraph.State
	Target string
}

// Trace is a rendered-in-order path through the transition graph: the steps
// to a final state.
type Trace struct {
	Steps []stategraph.Step
	Final stategraph.State
}

// Render formats the trace as alternating states and -label-> arrows.
func (tr Trace) Render(t *perms.Table) string {
	var sb strings.Builder
	for _, step := range tr.Steps {
		sb.WriteString(step.From.Format(t))
		sb.WriteString(" -")
		sb.WriteString(step.Label.String())
		sb.WriteString("-> ")
	}
	sb.WriteString(tr.Final.Format(t))
	return sb.String()
}

// RenderLabels formats a label-only trace from an entry point as a chain of
// -label-> arrows.
func RenderLabels(t *perms.Table, entry stategraph.State, labels []stategraph.Label) string {
	var sb strings.Builder
	sb.WriteString(entry.Format(t))
	for _, l := range labels {
		sb.WriteString(" -")
		sb.WriteString(l.String())
		sb.WriteString("->")
	}
	return sb.String()
}

// Finding is one discovered information flow.
type Finding struct {
	// Analyzer is the name of the reporting analyser.
	Analyzer string
	// Entry is the entry point the flow starts from.
	Entry stategraph.State
	// Target is the sensitive path involved, empty for write-exec findings.
	Target string
	// Object is the intermediate or write-exec object, empty for direct
	// flows.
	Object string
	// States are the states in which the flow's final predicate holds,
	// with Traces the paths to them (parallel slices).
	States []stategraph.State
	Traces []Trace
	// WriteTraces are the label traces establishing write access (indirect
	// and write-exec findings).
	WriteTraces [][]stategraph.Label
	// ExecTraces are the label traces establishing exec access (write-exec
	// findings).
	ExecTraces [][]stategraph.Label
}
