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

// Package gran is a static information-flow analyser for grsecurity RBAC
// policies. It compiles a policy into a transition system over RBAC states
// and searches it for direct, indirect and write-execute flows reaching a
// configured set of sensitive targets.
package gran

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/log"
	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/policy/parse"
	"github.com/secgroup/gran/policy/preprocess"
	"github.com/secgroup/gran/stategraph"
	"github.com/secgroup/gran/version"
)

var errNoPolicy = errors.New("no policy path specified")

// Analyzer is the main entry point of the flow analyser.
type Analyzer struct{}

// New creates a new analyser instance.
func New() *Analyzer { return &Analyzer{} }

// AnalysisConfig stores the config settings of an analysis run, such as the
// policy to compile and the flow analysers to run on its transition graph.
type AnalysisConfig struct {
	// PolicyPath is the root policy file or directory.
	PolicyPath string
	// AllowAdmin disables the blacklisting of administrative roles.
	AllowAdmin bool
	// BestCase assumes no set-UID/GID binaries: exec transitions keep the
	// current identity.
	BestCase bool
	// Analyzers are the flow analysers to run over the completed graph.
	Analyzers []flow.Analyzer
	// Request carries the entry points, indirect-flow triples and targets.
	Request *flow.Request
	// Optional: if set, the preprocessed policy buffer is written to this
	// path before parsing.
	ProcessedPolicyPath string
}

// StatusEnum is the enum for the analysis status.
type StatusEnum int

// StatusEnum values.
const (
	StatusUnspecified StatusEnum = iota
	StatusSucceeded
	StatusPartiallySucceeded
	StatusFailed
)

// Status is the status of an analysis run. In case the run fails,
// FailureReason contains details.
type Status struct {
	Status        StatusEnum
	FailureReason string
}

// AnalyzerStatus is the status of one flow analyser run.
type AnalyzerStatus struct {
	Name    string
	Version int
	Status  *Status
}

// AnalysisResult stores the results of an analysis: the frozen tables and
// transition graph, the per-analyser status, and the discovered flows.
type AnalysisResult struct {
	Version   string
	StartTime time.Time
	EndTime   time.Time
	Status    *Status
	// AnalyzerStatus has one entry per configured flow analyser.
	AnalyzerStatus []*AnalyzerStatus
	// Findings are the discovered flows, ordered by analyser name.
	Findings []*flow.Finding
	// Table and Graph are the analysis structures, shared read-only.
	Table *perms.Table
	Graph *stategraph.Graph
}

// Analyze compiles the policy into its transition system and runs the
// configured flow analysers over it. The pipeline (preprocess, parse, domain
// expansion, permission tables, inheritance closure, graph fixed point) is
// sequential; the analysers then run concurrently, sharing the completed
// structures read-only.
func (Analyzer) Analyze(ctx context.Context, config *AnalysisConfig) *AnalysisResult {
	res := &AnalysisResult{
		Version:   version.AnalyzerVersion,
		StartTime: time.Now(),
		Status:    &Status{Status: StatusSucceeded},
	}
	fail := func(err error) *AnalysisResult {
		res.Status = &Status{Status: StatusFailed, FailureReason: err.Error()}
		res.EndTime = time.Now()
		return res
	}
	if config.PolicyPath == "" {
		return fail(errNoPolicy)
	}

	text, err := preprocess.Expand(config.PolicyPath)
	if err != nil {
		return fail(err)
	}
	if config.ProcessedPolicyPath != "" {
		if err := os.WriteFile(config.ProcessedPolicyPath, []byte(text), 0644); err != nil {
			return fail(err)
		}
	}

	parsed, err := parse.Policy(text)
	if err != nil {
		return fail(err)
	}
	expanded := parse.ExpandDomains(parsed)
	log.Debugf("parsed %d roles", len(expanded.Roles))

	table, err := perms.Build(expanded)
	if err != nil {
		return fail(err)
	}
	table.Inherit()

	graph, err := stategraph.Build(table, stategraph.Options{
		BestCase:   config.BestCase,
		AllowAdmin: config.AllowAdmin,
	})
	if err != nil {
		return fail(err)
	}
	log.Debugf("transition graph: %d states", len(graph.States))
	res.Table, res.Graph = table, graph

	req := config.Request
	if req == nil {
		req = &flow.Request{}
	}

	var mu sync.Mutex
	var analysisErr error
	g, gctx := errgroup.WithContext(ctx)
	statuses := make([]*AnalyzerStatus, len(config.Analyzers))
	findings := make([][]*flow.Finding, len(config.Analyzers))
	for i, a := range config.Analyzers {
		g.Go(func() error {
			fs, err := a.Analyze(gctx, graph, req)
			st := &Status{Status: StatusSucceeded}
			if err != nil {
				st = &Status{Status: StatusFailed, FailureReason: err.Error()}
				mu.Lock()
				analysisErr = multierr.Append(analysisErr, err)
				mu.Unlock()
			}
			statuses[i] = &AnalyzerStatus{Name: a.Name(), Version: a.Version(), Status: st}
			findings[i] = fs
			return nil
		})
	}
	// The analysers report failures through their status; the group only
	// propagates context cancellation.
	_ = g.Wait()

	res.AnalyzerStatus = statuses
	for _, fs := range findings {
		res.Findings = append(res.Findings, fs...)
	}
	sort.SliceStable(res.Findings, func(i, j int) bool {
		return res.Findings[i].Analyzer < res.Findings[j].Analyzer
	})
	if analysisErr != nil {
		res.Status = &Status{Status: StatusPartiallySucceeded, FailureReason: analysisErr.Error()}
	}
	res.EndTime = time.Now()
	return res
}
