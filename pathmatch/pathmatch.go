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

// Package pathmatch implements the path algebra of the RBAC analyser:
// component-wise prefix matching with shell-style globbing, and the
// greatest-matching-path lookup used for subject and object resolution.
//
// A pattern matches a path iff the pattern has at most as many '/'-separated
// components as the path and every pattern component shell-matches the
// corresponding path component. This is a prefix match, not a full match:
// "/usr" matches "/usr/bin/sh". The root "/" is the single-empty-component
// path and matches every absolute path. A trailing slash produces a trailing
// empty component, so "/usr/" only matches paths whose third component is
// empty.
package pathmatch

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

var (
	globMu    sync.RWMutex
	globCache = map[string]glob.Glob{}
)

// compile returns the compiled glob for a single path component, caching
// compiled patterns. Components are matched without separator awareness, so
// '*' and '?' never cross a '/' boundary. A component that fails to compile
// only matches itself literally.
func compile(component string) glob.Glob {
	globMu.RLock()
	g, ok := globCache[component]
	globMu.RUnlock()
	if ok {
		return g
	}
	g, err := glob.Compile(component)
	if err != nil {
		g = literal(component)
	}
	globMu.Lock()
	globCache[component] = g
	globMu.Unlock()
	return g
}

type literal string

func (l literal) Match(s string) bool { return string(l) == s }

// Split breaks a path into its '/'-separated components. The root path "/"
// is treated as the single empty component.
func Split(path string) []string {
	if path == "/" {
		return []string{""}
	}
	return strings.Split(path, "/")
}

// Match reports whether path falls under pattern: the pattern components are
// a prefix of the path components under per-component shell matching.
func Match(pattern, path string) bool {
	pc := Split(pattern)
	sc := Split(path)
	if len(pc) > len(sc) {
		return false
	}
	for i, p := range pc {
		if p == sc[i] {
			continue
		}
		if !compile(p).Match(sc[i]) {
			return false
		}
	}
	return true
}

// GMP returns the greatest matching path: the longest candidate that matches
// path, with equal lengths broken lexicographically so the result is stable
// across runs. The second return value is false when no candidate matches.
func GMP(candidates []string, path string) (string, bool) {
	best, found := "", false
	for _, c := range candidates {
		if !Match(c, path) {
			continue
		}
		if !found || len(c) > len(best) || (len(c) == len(best) && c > best) {
			best, found = c, true
		}
	}
	return best, found
}
