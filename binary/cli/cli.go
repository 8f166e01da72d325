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

// Package cli defines the structures to store the CLI flags used by the
// analyser binary.
package cli

import (
	"errors"
	"fmt"
	"os"

	gran "github.com/secgroup/gran"
	"github.com/secgroup/gran/flow"
	fl "github.com/secgroup/gran/flow/list"
	"github.com/secgroup/gran/input"
)

// Flags contains a field for all the cli flags that can be set.
type Flags struct {
	PolicyPath          string
	AllowAdmin          bool
	BestCase            bool
	EntryPointsPath     string
	TargetsPath         string
	LearnConfigPath     string
	ProcessedPolicyPath string
	Verbose             bool
	PrintVersion        bool
}

// ValidateFlags validates the passed command line flags.
func ValidateFlags(flags *Flags) error {
	if flags.PrintVersion {
		return nil
	}
	if flags.PolicyPath == "" {
		return errors.New("missing policy path argument")
	}
	return nil
}

// GetAnalysisConfig constructs the analysis config from the parsed flags,
// reading the entry-point, target and learn-config files. All built-in flow
// analysers are run.
func (f *Flags) GetAnalysisConfig() (*gran.AnalysisConfig, error) {
	analyzers, err := fl.FromNames([]string{"default"})
	if err != nil {
		return nil, err
	}
	req := &flow.Request{}

	if f.EntryPointsPath != "" {
		file, err := os.Open(f.EntryPointsPath)
		if err != nil {
			return nil, fmt.Errorf("opening entry points %q: %w", f.EntryPointsPath, err)
		}
		states, triples, err := input.EntryPoints(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry points %q: %w", f.EntryPointsPath, err)
		}
		req.EntryPoints, req.Triples = states, triples
	}
	if f.TargetsPath != "" {
		file, err := os.Open(f.TargetsPath)
		if err != nil {
			return nil, fmt.Errorf("opening targets %q: %w", f.TargetsPath, err)
		}
		targets, err := input.Targets(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("reading targets %q: %w", f.TargetsPath, err)
		}
		req.Targets = append(req.Targets, targets...)
	}
	if f.LearnConfigPath != "" {
		file, err := os.Open(f.LearnConfigPath)
		if err != nil {
			return nil, fmt.Errorf("opening learn config %q: %w", f.LearnConfigPath, err)
		}
		targets, err := input.LearnConfig(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("reading learn config %q: %w", f.LearnConfigPath, err)
		}
		req.Targets = append(req.Targets, targets...)
	}

	return &gran.AnalysisConfig{
		PolicyPath:          f.PolicyPath,
		AllowAdmin:          f.AllowAdmin,
		BestCase:            f.BestCase,
		Analyzers:           analyzers,
		Request:             req,
		ProcessedPolicyPath: f.ProcessedPolicyPath,
	}, nil
}
