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

package stategraph

// Reachability walks over the completed graph. States absent from the
// transition map are sinks, not errors, and states with a blacklisted
// effective role are never entered.

// enterable reports whether a walk may enter the state.
func (g *Graph) enterable(s State) bool {
	role, _ := EffRole(g.Table, s)
	return !g.Blacklist.Contains(role)
}

// Read reports whether the object is readable in the given state. A state
// whose subject matches nothing, like a missing permission entry, grants
// nothing.
func (g *Graph) Read(s State, object string) bool {
	role, sc, err := g.Context(s)
	if err != nil {
		return false
	}
	return g.Table.Read(role, sc, object)
}

// Write reports whether the object is writable in the given state.
func (g *Graph) Write(s State, object string) bool {
	role, sc, err := g.Context(s)
	if err != nil {
		return false
	}
	return g.Table.Write(role, sc, object)
}

// ReachableStates returns every state reachable from the given one, each
// mapped to the labels of the first path found to it. The start state maps
// to the empty path.
func (g *Graph) ReachableStates(from State) map[State][]Label {
	res := map[State][]Label{}
	if !g.enterable(from) {
		return res
	}
	res[from] = []Label{}
	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, e := range g.Trans[s] {
			if !g.enterable(e.To) {
				continue
			}
			if _, seen := res[e.To]; seen {
				continue
			}
			path := make([]Label, 0, len(res[s])+1)
			path = append(path, res[s]...)
			path = append(path, e.Label)
			res[e.To] = path
			queue = append(queue, e.To)
		}
	}
	return res
}

// ReachableStatesE is ReachableStates with the path recorded as
// (predecessor, label) steps, so a trace can be rendered with its
// intermediate states.
func (g *Graph) ReachableStatesE(from State) map[State][]Step {
	res := map[State][]Step{}
	if !g.enterable(from) {
		return res
	}
	res[from] = []Step{}
	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, e := range g.Trans[s] {
			if !g.enterable(e.To) {
				continue
			}
			if _, seen := res[e.To]; seen {
				continue
			}
			path := make([]Step, 0, len(res[s])+1)
			path = append(path, res[s]...)
			path = append(path, Step{From: s, Label: e.Label})
			res[e.To] = path
			queue = append(queue, e.To)
		}
	}
	return res
}

type walkPhase int

const (
	phaseRead walkPhase = iota
	phaseWrite
)

// ReachableWriteObjects runs the two-phase search behind indirect flow
// analysis. The walk starts in the read phase; as soon as it enters a state
// where target is readable it switches to the write phase, and from then on
// every visited state contributes its writable objects, each annotated with
// the traces leading to the contributing states. States are tracked per
// phase, so a state may be visited once in each.
func (g *Graph) ReachableWriteObjects(from State, target string) map[string][][]Label {
	res := map[string][][]Label{}
	if !g.enterable(from) {
		return res
	}

	type node struct {
		s  State
		ph walkPhase
	}
	type workItem struct {
		s     State
		ph    walkPhase
		trace []Label
	}
	visited := map[node]bool{node{from, phaseRead}: true}
	queue := []workItem{{s: from, ph: phaseRead}}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		ph := it.ph
		if ph == phaseRead && g.Read(it.s, target) {
			if visited[node{it.s, phaseWrite}] {
				continue
			}
			ph = phaseWrite
			visited[node{it.s, phaseWrite}] = true
		}
		if ph == phaseWrite {
			if role, sc, err := g.Context(it.s); err == nil {
				for _, obj := range g.Table.ObjectsWithPerm(role, sc, 'w') {
					res[obj] = append(res[obj], it.trace)
				}
			}
		}
		for _, e := range g.Trans[it.s] {
			if !g.enterable(e.To) {
				continue
			}
			next := node{e.To, ph}
			if visited[next] {
				continue
			}
			visited[next] = true
			trace := make([]Label, 0, len(it.trace)+1)
			trace = append(trace, it.trace...)
			trace = append(trace, e.Label)
			queue = append(queue, workItem{s: e.To, ph: ph, trace: trace})
		}
	}
	return res
}

// TraceToPerm walks every state reachable from the given one and records,
// for each object carrying the permission mode ('r', 'w' or 'x') at a
// visited state, the traces to the contributing states.
func (g *Graph) TraceToPerm(from State, mode byte) map[string][][]Label {
	res := map[string][][]Label{}
	for s, path := range g.ReachableStates(from) {
		role, sc, err := g.Context(s)
		if err != nil {
			continue
		}
		for _, obj := range g.Table.ObjectsWithPerm(role, sc, mode) {
			res[obj] = append(res[obj], path)
		}
	}
	return res
}
