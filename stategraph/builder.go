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

import (
	"bitbucket.org/creachadair/stringset"
	"github.com/secgroup/gran/pathmatch"
	"github.com/secgroup/gran/perms"
)

// Options configures the transition graph construction.
type Options struct {
	// BestCase assumes no set-UID/GID binaries: exec keeps the current
	// identity and emits a single edge per target subject.
	BestCase bool
	// AllowAdmin disables the blacklisting of administrative roles.
	AllowAdmin bool
}

// Graph is the completed transition system. It is built once by Build and
// read-only afterwards, so it may be shared across concurrent walks.
type Graph struct {
	Table     *perms.Table
	States    map[State]bool
	Trans     map[State][]Edge
	Blacklist stringset.Set

	// matched caches the governing subject declaration per expanded state.
	matched map[State]string
}

// Build runs the fixed-point construction: the initial frontier is the full
// cartesian product of role slots and subjects, and every state is expanded
// once with its role, UID, GID and exec transitions. Blacklisted special
// roles are left out of the initial frontier, edges into states whose
// effective role is blacklisted are not generated, and such states get no
// outgoing edges.
func Build(t *perms.Table, opts Options) (*Graph, error) {
	g := &Graph{
		Table:     t,
		States:    map[State]bool{},
		Trans:     map[State][]Edge{},
		Blacklist: stringset.New(),
		matched:   map[State]string{},
	}
	if !opts.AllowAdmin {
		g.Blacklist = t.AdminRoles()
	}

	specials := t.SpecialRoles.Diff(g.Blacklist).Union(stringset.New(DontCare)).Elements()
	users := t.UserRoles.Union(stringset.New(DontCare)).Elements()
	groups := t.GroupRoles.Union(stringset.New(DontCare)).Elements()

	var queue []State
	for _, sp := range specials {
		for _, u := range users {
			for _, gr := range groups {
				for _, subj := range t.AllSubjects {
					st := State{Special: sp, User: u, Group: gr, Subject: subj}
					g.States[st] = true
					queue = append(queue, st)
				}
			}
		}
	}

	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]

		role, _ := EffRole(t, st)
		if g.Blacklist.Contains(role) {
			continue
		}
		sc, err := t.Match(role, st.Subject)
		if err != nil {
			return nil, err
		}
		g.matched[st] = sc
		if _, ok := g.Trans[st]; !ok {
			g.Trans[st] = []Edge{}
		}
		key := perms.SubjKey{Role: role, Subject: sc}

		// Role transitions, DONTCARE always permitted.
		var roleTargets []string
		if info := t.Roles[role]; info != nil {
			roleTargets = info.Transitions
		}
		for _, target := range append(append([]string{}, roleTargets...), DontCare) {
			if g.Blacklist.Contains(target) {
				continue
			}
			to := State{Special: target, User: st.User, Group: st.Group, Subject: st.Subject}
			queue = g.addEdge(st, Label{Kind: SetRole, Arg: target}, to, queue)
		}

		// User transitions, gated on CAP_SETUID.
		if t.Caps[key].Contains(perms.CapSetUID) {
			for _, u := range t.UserTrans[key].Elements() {
				to := State{Special: st.Special, User: slotRole(u, t.UserRoles), Group: st.Group, Subject: st.Subject}
				queue = g.addEdge(st, Label{Kind: SetUID, Arg: u}, to, queue)
			}
		}

		// Group transitions, gated on CAP_SETGID.
		if t.Caps[key].Contains(perms.CapSetGID) {
			for _, gr := range t.GrpTrans[key].Elements() {
				to := State{Special: st.Special, User: st.User, Group: slotRole(gr, t.GroupRoles), Subject: st.Subject}
				queue = g.addEdge(st, Label{Kind: SetGID, Arg: gr}, to, queue)
			}
		}

		// Exec transitions. In normal mode a set-UID/GID binary may change
		// identity without a capability check.
		for _, obj := range t.ObjectsWithPerm(role, sc, 'x') {
			for _, next := range g.execImage(obj, role, sc) {
				if opts.BestCase {
					to := State{Special: st.Special, User: st.User, Group: st.Group, Subject: next}
					queue = g.addEdge(st, Label{Kind: Exec, Arg: obj}, to, queue)
					continue
				}
				us := t.UserTrans[key].Union(stringset.New(st.User)).Elements()
				gs := t.GrpTrans[key].Union(stringset.New(st.Group)).Elements()
				for _, u := range us {
					for _, gr := range gs {
						to := State{
							Special: st.Special,
							User:    slotRole(u, t.UserRoles),
							Group:   slotRole(gr, t.GroupRoles),
							Subject: next,
						}
						queue = g.addEdge(st, Label{Kind: Exec, Arg: obj}, to, queue)
					}
				}
			}
		}
	}
	return g, nil
}

// addEdge appends an edge unless the destination's effective role is
// blacklisted, enqueueing newly discovered states.
func (g *Graph) addEdge(from State, l Label, to State, queue []State) []State {
	if role, _ := EffRole(g.Table, to); g.Blacklist.Contains(role) {
		return queue
	}
	g.Trans[from] = append(g.Trans[from], Edge{Label: l, To: to})
	if !g.States[to] {
		g.States[to] = true
		queue = append(queue, to)
	}
	return queue
}

// execImage returns the candidate subjects an exec of obj may land in: every
// subject path governed by exactly obj under the current permission context,
// plus the subject that best matches the executed path itself.
func (g *Graph) execImage(obj, role, sc string) []string {
	cands := stringset.New()
	objs := g.Table.Objects(role, sc)
	for _, s2 := range g.Table.AllSubjects {
		if !pathmatch.Match(obj, s2) {
			continue
		}
		if m, ok := pathmatch.GMP(objs, s2); ok && m == obj {
			cands.Add(s2)
		}
	}
	if m, ok := pathmatch.GMP(g.Table.AllSubjects, obj); ok {
		cands.Add(m)
	}
	return cands.Elements()
}

// slotRole maps a transition target to its state slot value: the name itself
// for a role of the slot's kind, DONTCARE otherwise.
func slotRole(name string, kind stringset.Set) string {
	if kind.Contains(name) {
		return name
	}
	return DontCare
}

// Context resolves a state's effective role and governing subject
// declaration. It fails with a semantic error when the state's subject
// matches nothing in the effective role.
func (g *Graph) Context(s State) (string, string, error) {
	role, _ := EffRole(g.Table, s)
	if sc, ok := g.matched[s]; ok {
		return role, sc, nil
	}
	sc, err := g.Table.Match(role, s.Subject)
	return role, sc, err
}
