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

package stategraph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/policy/parse"
	"github.com/secgroup/gran/stategraph"
)

func mustGraph(t *testing.T, text string, opts stategraph.Options) *stategraph.Graph {
	t.Helper()
	parsed, err := parse.Policy(text)
	if err != nil {
		t.Fatalf("parse.Policy(): %v", err)
	}
	table, err := perms.Build(parse.ExpandDomains(parsed))
	if err != nil {
		t.Fatalf("perms.Build(): %v", err)
	}
	table.Inherit()
	g, err := stategraph.Build(table, opts)
	if err != nil {
		t.Fatalf("stategraph.Build(): %v", err)
	}
	return g
}

const basePolicy = `
role default
subject /
	/ h
	-CAP_ALL
`

func TestBuildEmptyPolicy(t *testing.T) {
	g := mustGraph(t, "", stategraph.Options{})
	if len(g.States) != 0 {
		t.Errorf("empty policy produced %d states, want 0", len(g.States))
	}
}

func TestEffRole(t *testing.T) {
	g := mustGraph(t, basePolicy+`
role op s
subject /
	/ h
	-CAP_ALL

role alice u
subject /
	/ h
	-CAP_ALL

role staff g
subject /
	/ h
	-CAP_ALL
`, stategraph.Options{})
	testCases := []struct {
		desc  string
		state stategraph.State
		want  string
	}{
		{
			desc:  "special slot wins",
			state: stategraph.State{Special: "op", User: "alice", Group: "staff", Subject: "/"},
			want:  "op:S:/",
		},
		{
			desc:  "user slot next",
			state: stategraph.State{Special: "_", User: "alice", Group: "staff", Subject: "/"},
			want:  "alice:U:/",
		},
		{
			desc:  "group slot next",
			state: stategraph.State{Special: "_", User: "_", Group: "staff", Subject: "/"},
			want:  "staff:G:/",
		},
		{
			desc:  "default fallback",
			state: stategraph.State{Special: "_", User: "_", Group: "_", Subject: "/"},
			want:  "default:D:/",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := tc.state.Format(g.Table); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildRoleTransitions(t *testing.T) {
	g := mustGraph(t, basePolicy+`
role op s
subject /
	/ h
	-CAP_ALL

role alice u
role_transitions op
subject /
	/ h
	-CAP_ALL
`, stategraph.Options{})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}
	want := []stategraph.Edge{
		{Label: stategraph.Label{Kind: stategraph.SetRole, Arg: "op"},
			To: stategraph.State{Special: "op", User: "alice", Group: "_", Subject: "/"}},
		{Label: stategraph.Label{Kind: stategraph.SetRole, Arg: "_"},
			To: stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}},
	}
	if diff := cmp.Diff(want, g.Trans[from]); diff != "" {
		t.Errorf("Trans[%v]: unexpected edges (-want +got):\n%s", from, diff)
	}
}

func TestBuildUserTransitionsNeedSetUID(t *testing.T) {
	policyFor := func(caps string) string {
		return basePolicy + `
role alice u
subject /
	user_transition_allow bob
	/ h
	-CAP_ALL
` + caps + `

role bob u
subject /
	/ h
	-CAP_ALL
`
	}
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}

	g := mustGraph(t, policyFor(""), stategraph.Options{})
	if n := countEdges(g, from, stategraph.SetUID); n != 0 {
		t.Errorf("without CAP_SETUID: %d set_UID edges, want 0", n)
	}

	g = mustGraph(t, policyFor("	+CAP_SETUID"), stategraph.Options{})
	if n := countEdges(g, from, stategraph.SetUID); n != 1 {
		t.Errorf("with CAP_SETUID: %d set_UID edges, want 1", n)
	}
	to := stategraph.State{Special: "_", User: "bob", Group: "_", Subject: "/"}
	if !g.States[to] {
		t.Errorf("set_UID target %v not in the state set", to)
	}
}

const execPolicy = basePolicy + `
role alice u
subject /
	user_transition_allow bob
	group_transition_allow staff
	/ h
	/bin rx
	-CAP_ALL
subject /bin/sh
	/ h
	-CAP_ALL

role bob u
subject /
	/ h
	-CAP_ALL

role staff g
subject /
	/ h
	-CAP_ALL
`

func TestBuildExecBestCase(t *testing.T) {
	g := mustGraph(t, execPolicy, stategraph.Options{BestCase: true})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}
	var tos []stategraph.State
	for _, e := range g.Trans[from] {
		if e.Label.Kind == stategraph.Exec {
			if e.Label.Arg != "/bin" {
				t.Errorf("exec label arg = %q, want /bin", e.Label.Arg)
			}
			tos = append(tos, e.To)
		}
	}
	// One edge per candidate subject, identity unchanged: the subject /bin/sh
	// falls under the executed object, and / is the best match for /bin
	// itself.
	want := []stategraph.State{
		{Special: "_", User: "alice", Group: "_", Subject: "/"},
		{Special: "_", User: "alice", Group: "_", Subject: "/bin/sh"},
	}
	opt := cmpopts.SortSlices(stategraph.State.Less)
	if diff := cmp.Diff(want, tos, opt); diff != "" {
		t.Errorf("best-case exec targets: (-want +got):\n%s", diff)
	}
}

func TestBuildExecNormalMode(t *testing.T) {
	g := mustGraph(t, execPolicy, stategraph.Options{})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}
	n := countEdges(g, from, stategraph.Exec)
	// Identity fan-out: users {bob, alice} x groups {staff, _}, for each of
	// the two candidate subjects.
	if n != 8 {
		t.Errorf("normal-mode exec edge count = %d, want 8", n)
	}
	// A set-UID shell: bob's identity with the staff group.
	want := stategraph.State{Special: "_", User: "bob", Group: "staff", Subject: "/bin/sh"}
	if !g.States[want] {
		t.Errorf("state %v not reached by normal-mode exec", want)
	}
}

func TestBuildBlacklist(t *testing.T) {
	text := basePolicy + `
role admin sA
subject /
	/ r
	-CAP_ALL

role alice u
role_transitions admin
subject /
	/ h
	-CAP_ALL
`
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}
	admin := stategraph.State{Special: "admin", User: "alice", Group: "_", Subject: "/"}

	g := mustGraph(t, text, stategraph.Options{})
	if g.States[admin] {
		t.Errorf("blacklisted admin state %v generated without -a", admin)
	}
	for s := range g.ReachableStates(from) {
		if s.Special == "admin" {
			t.Errorf("blacklisted admin state %v reachable without -a", s)
		}
	}

	g = mustGraph(t, text, stategraph.Options{AllowAdmin: true})
	if _, ok := g.ReachableStates(from)[admin]; !ok {
		t.Errorf("admin state %v not reachable with -a", admin)
	}
}

func TestBuildIdempotent(t *testing.T) {
	g1 := mustGraph(t, execPolicy, stategraph.Options{})
	g2 := mustGraph(t, execPolicy, stategraph.Options{})
	if diff := cmp.Diff(g1.States, g2.States); diff != "" {
		t.Errorf("state sets differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(g1.Trans, g2.Trans); diff != "" {
		t.Errorf("transition maps differ between runs (-first +second):\n%s", diff)
	}
	// Re-running the fixed point on the output adds nothing: every edge lands
	// in the state set and every non-blacklisted state has been expanded.
	for s := range g1.States {
		role, _ := stategraph.EffRole(g1.Table, s)
		if _, ok := g1.Trans[s]; !ok && !g1.Blacklist.Contains(role) {
			t.Errorf("state %v was never expanded", s)
		}
		for _, e := range g1.Trans[s] {
			if !g1.States[e.To] {
				t.Errorf("edge %v -> %v leaves the state set", s, e.To)
			}
		}
	}
}

func TestReachableStatesRecordsPaths(t *testing.T) {
	g := mustGraph(t, basePolicy+`
role op s
subject /
	/ h
	-CAP_ALL

role alice u
role_transitions op
subject /
	/ h
	-CAP_ALL
`, stategraph.Options{})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}
	reach := g.ReachableStates(from)

	if diff := cmp.Diff([]stategraph.Label{}, reach[from]); diff != "" {
		t.Errorf("start state path (-want +got):\n%s", diff)
	}
	to := stategraph.State{Special: "op", User: "alice", Group: "_", Subject: "/"}
	want := []stategraph.Label{{Kind: stategraph.SetRole, Arg: "op"}}
	if diff := cmp.Diff(want, reach[to]); diff != "" {
		t.Errorf("path to %v (-want +got):\n%s", to, diff)
	}

	// The E variant records predecessors for reverse rendering.
	reachE := g.ReachableStatesE(from)
	wantE := []stategraph.Step{{From: from, Label: stategraph.Label{Kind: stategraph.SetRole, Arg: "op"}}}
	if diff := cmp.Diff(wantE, reachE[to]); diff != "" {
		t.Errorf("steps to %v (-want +got):\n%s", to, diff)
	}
}

func TestReachableWriteObjects(t *testing.T) {
	g := mustGraph(t, basePolicy+`
role alice u
subject /
	/ h
	/secret r
	/tmp/x w
	-CAP_ALL
`, stategraph.Options{})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}

	got := g.ReachableWriteObjects(from, "/secret")
	if _, ok := got["/tmp/x"]; !ok {
		t.Fatalf("ReachableWriteObjects() = %v, want /tmp/x", got)
	}
	// The entry state itself reads the target, so the write phase starts
	// there with an empty trace.
	if len(got["/tmp/x"]) == 0 || len(got["/tmp/x"][0]) != 0 {
		t.Errorf("traces for /tmp/x = %v, want one empty trace first", got["/tmp/x"])
	}

	// A target nobody can read never starts the write phase.
	if got := g.ReachableWriteObjects(from, "/unreadable"); len(got) != 0 {
		t.Errorf("ReachableWriteObjects(unreadable target) = %v, want empty", got)
	}
}

func TestTraceToPerm(t *testing.T) {
	g := mustGraph(t, basePolicy+`
role alice u
subject /
	/ h
	/tmp/evil wx
	/var/log a
	-CAP_ALL
`, stategraph.Options{})
	from := stategraph.State{Special: "_", User: "alice", Group: "_", Subject: "/"}

	writes := g.TraceToPerm(from, 'w')
	if _, ok := writes["/tmp/evil"]; !ok {
		t.Errorf("TraceToPerm(w) = %v, missing /tmp/evil", writes)
	}
	if _, ok := writes["/var/log"]; !ok {
		t.Errorf("TraceToPerm(w) = %v, missing append-only /var/log", writes)
	}
	execs := g.TraceToPerm(from, 'x')
	if _, ok := execs["/tmp/evil"]; !ok {
		t.Errorf("TraceToPerm(x) = %v, missing /tmp/evil", execs)
	}
	if _, ok := execs["/var/log"]; ok {
		t.Errorf("TraceToPerm(x) contains non-executable /var/log")
	}
}

func countEdges(g *stategraph.Graph, from stategraph.State, kind stategraph.LabelKind) int {
	n := 0
	for _, e := range g.Trans[from] {
		if e.Label.Kind == kind {
			n++
		}
	}
	return n
}
