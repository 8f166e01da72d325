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

// Package granrunner provides the main function for running an analysis with
// the gran binary.
package granrunner

import (
	"context"
	"fmt"
	"os"

	gran "github.com/secgroup/gran"
	"github.com/secgroup/gran/binary/cli"
	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/log"
	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/stategraph"
	"github.com/secgroup/gran/version"
)

// RunAnalysis executes the analysis with the given CLI flags and returns the
// exit code passed to os.Exit() in the main binary.
func RunAnalysis(flags *cli.Flags) int {
	if flags.PrintVersion {
		fmt.Printf("gran v%s\n", version.AnalyzerVersion)
		return 0
	}

	if flags.Verbose {
		log.SetLevel(log.LevelDebug)
	}

	cfg, err := flags.GetAnalysisConfig()
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}

	log.Infof("Analysing policy %s with %d flow analysers", cfg.PolicyPath, len(cfg.Analyzers))
	result := gran.New().Analyze(context.Background(), cfg)
	if result.Status.Status == gran.StatusFailed {
		log.Errorf("%s", result.Status.FailureReason)
		return 1
	}

	for _, st := range result.AnalyzerStatus {
		if st.Status.Status != gran.StatusSucceeded {
			log.Warnf("Analyser '%s' did not succeed. Reason: %s", st.Name, st.Status.FailureReason)
		}
	}
	log.Infof("Explored %d states, found %d flows", len(result.Graph.States), len(result.Findings))

	printFindings(os.Stdout, result)

	if result.Status.Status != gran.StatusSucceeded {
		log.Errorf("Analysis wasn't successful: %s", result.Status.FailureReason)
		return 1
	}
	return 0
}

// printFindings renders the discovered flows, one block per finding, states
// as role:KIND:subject and traces as -label-> chains.
func printFindings(w *os.File, result *gran.AnalysisResult) {
	t := result.Table
	for _, f := range result.Findings {
		switch {
		case f.Object == "":
			fmt.Fprintf(w, "%s: target %s from %s\n", f.Analyzer, f.Target, f.Entry.Format(t))
			for _, tr := range f.Traces {
				fmt.Fprintf(w, "    %s\n", tr.Render(t))
			}
		case f.Target != "":
			fmt.Fprintf(w, "%s: target %s leaks via %s\n", f.Analyzer, f.Target, f.Object)
			printLabelTraces(w, t, "write", f.Entry, f.WriteTraces)
			for _, tr := range f.Traces {
				fmt.Fprintf(w, "    read  %s\n", tr.Render(t))
			}
		default:
			fmt.Fprintf(w, "%s: %s writable and executable from %s\n", f.Analyzer, f.Object, f.Entry.Format(t))
			printLabelTraces(w, t, "write", f.Entry, f.WriteTraces)
			printLabelTraces(w, t, "exec", f.Entry, f.ExecTraces)
		}
	}
}

func printLabelTraces(w *os.File, t *perms.Table, kind string, entry stategraph.State, traces [][]stategraph.Label) {
	for _, labels := range traces {
		fmt.Fprintf(w, "    %s %s\n", kind, flow.RenderLabels(t, entry, labels))
	}
}
