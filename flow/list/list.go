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

// Package list provides a public list of the built-in flow analysers.
package list

import (
	"fmt"
	"maps"
	"slices"

	"github.com/secgroup/gran/flow"
	"github.com/secgroup/gran/flow/direct"
	"github.com/secgroup/gran/flow/indirect"
	"github.com/secgroup/gran/flow/writeexec"
)

// InitFn is the analyser initializer function.
type InitFn func() flow.Analyzer

// InitMap is a map of analyser names to their initers.
type InitMap map[string][]InitFn

// Direct flow analysers.
var Direct = InitMap{
	direct.ReadName:  {direct.NewRead},
	direct.WriteName: {direct.NewWrite},
}

// Indirect flow analysers.
var Indirect = InitMap{indirect.Name: {indirect.New}}

// WriteExec flow analysers.
var WriteExec = InitMap{writeexec.Name: {writeexec.New}}

// All flow analysers.
var All = concat(Direct, Indirect, WriteExec)

// Default analysers that are enabled when none are named explicitly.
var Default = All

var analyzerNames = concat(All, InitMap{
	"direct":    vals(Direct),
	"indirect":  vals(Indirect),
	"writeexec": vals(WriteExec),
	"default":   vals(Default),
	"all":       vals(All),
})

func concat(initMaps ...InitMap) InitMap {
	result := InitMap{}
	for _, m := range initMaps {
		maps.Copy(result, m)
	}
	return result
}

func vals(initMap InitMap) []InitFn {
	return slices.Concat(slices.Collect(maps.Values(initMap))...)
}

// FromName returns the analysers for a single name or alias.
func FromName(name string) ([]flow.Analyzer, error) {
	initers, ok := analyzerNames[name]
	if !ok {
		return nil, fmt.Errorf("unknown flow analyser %q", name)
	}
	as := make([]flow.Analyzer, 0, len(initers))
	for _, initer := range initers {
		as = append(as, initer())
	}
	return as, nil
}

// FromNames resolves a list of names and aliases into analysers, dropping
// duplicates by name.
func FromNames(names []string) ([]flow.Analyzer, error) {
	byName := map[string]flow.Analyzer{}
	var order []string
	for _, name := range names {
		as, err := FromName(name)
		if err != nil {
			return nil, err
		}
		for _, a := range as {
			if _, seen := byName[a.Name()]; !seen {
				byName[a.Name()] = a
				order = append(order, a.Name())
			}
		}
	}
	slices.Sort(order)
	result := make([]flow.Analyzer, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result, nil
}
