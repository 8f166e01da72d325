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

package perms_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/policy"
	"github.com/secgroup/gran/policy/parse"
)

func mustTable(t *testing.T, text string) *perms.Table {
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
	return table
}

func TestCapCompute(t *testing.T) {
	testCases := []struct {
		desc   string
		deltas []policy.CapDelta
		want   []string
	}{
		{
			desc: "no deltas keeps the full universe",
			want: []string{"CAP_SETGID", "CAP_SETUID"},
		},
		{
			desc:   "drop all",
			deltas: []policy.CapDelta{{Add: false, Name: "CAP_ALL"}},
			want:   nil,
		},
		{
			desc: "drop all then grant one",
			deltas: []policy.CapDelta{
				{Add: false, Name: "CAP_ALL"},
				{Add: true, Name: "CAP_SETUID"},
			},
			want: []string{"CAP_SETUID"},
		},
		{
			desc: "untracked capabilities are discarded",
			deltas: []policy.CapDelta{
				{Add: false, Name: "CAP_ALL"},
				{Add: true, Name: "CAP_NET_ADMIN"},
			},
			want: nil,
		},
		{
			desc: "later delta wins",
			deltas: []policy.CapDelta{
				{Add: true, Name: "CAP_SETGID"},
				{Add: false, Name: "CAP_ALL"},
				{Add: true, Name: "CAP_SETGID"},
				{Add: false, Name: "CAP_SETGID"},
			},
			want: nil,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := perms.CapCompute(tc.deltas).Elements()
			if len(got) == 0 {
				got = nil
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("CapCompute(%v): unexpected set (-want +got):\n%s", tc.deltas, diff)
			}
		})
	}
}

func TestTransitionSets(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /
	user_transition_allow bob operator
	/ r

role bob u
subject /
	user_transition_deny alice
	/ r

role carol u
subject /
	/ r
`)
	testCases := []struct {
		desc    string
		role    string
		want    []string
		wantNot []string
	}{
		{
			desc: "allow clause naming a non-role keeps DONTCARE",
			role: "alice",
			want: []string{"bob", "_"},
			// The allow set is intersected with the user roles; alice
			// herself was not named.
			wantNot: []string{"alice", "operator"},
		},
		{
			desc:    "deny clause removes the named roles",
			role:    "bob",
			want:    []string{"bob", "carol", "_"},
			wantNot: []string{"alice"},
		},
		{
			desc: "unspecified permits every user role and DONTCARE",
			role: "carol",
			want: []string{"alice", "bob", "carol", "_"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := table.UserTrans[perms.SubjKey{Role: tc.role, Subject: "/"}]
			for _, w := range tc.want {
				if !got.Contains(w) {
					t.Errorf("UserTrans[%s] = %v, missing %q", tc.role, got, w)
				}
			}
			for _, w := range tc.wantNot {
				if got.Contains(w) {
					t.Errorf("UserTrans[%s] = %v, should not contain %q", tc.role, got, w)
				}
			}
		})
	}
}

func TestInheritPermissions(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /usr
	/etc/passwd r
	/usr rx
subject /usr/bin
	/usr/bin rwx
`)
	// /usr/bin lacks the override flag, so it inherits /usr's entries where
	// it has none of its own.
	got := table.Perms[perms.PermKey{Role: "alice", Subject: "/usr/bin", Object: "/etc/passwd"}]
	if got != "r" {
		t.Errorf("inherited perm for /etc/passwd = %q, want %q", got, "r")
	}
	// Existing child entries win.
	if got := table.Perms[perms.PermKey{Role: "alice", Subject: "/usr/bin", Object: "/usr/bin"}]; got != "rwx" {
		t.Errorf("child perm for /usr/bin = %q, want %q", got, "rwx")
	}
	// The matched subject for a path below /usr/bin is /usr/bin, and the
	// inherited entry makes /etc/passwd readable there.
	sc, err := table.Match("alice", "/usr/bin/sh")
	if err != nil {
		t.Fatalf("Match(): %v", err)
	}
	if sc != "/usr/bin" {
		t.Errorf("Match(alice, /usr/bin/sh) = %q, want /usr/bin", sc)
	}
	if !table.Read("alice", sc, "/etc/passwd") {
		t.Errorf("Read(alice, %s, /etc/passwd) = false, want true", sc)
	}
}

func TestInheritOverrideFlag(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /
	/etc/passwd r
	/ h
	-CAP_ALL
subject /usr o
	/usr r
`)
	// The override flag stops both permission and capability inheritance.
	if _, ok := table.Perms[perms.PermKey{Role: "alice", Subject: "/usr", Object: "/etc/passwd"}]; ok {
		t.Errorf("override subject inherited a permission entry")
	}
	caps := table.Caps[perms.SubjKey{Role: "alice", Subject: "/usr"}]
	if !caps.Contains(perms.CapSetUID) || !caps.Contains(perms.CapSetGID) {
		t.Errorf("override subject caps = %v, want the untouched universe", caps)
	}
	// The non-override root dropped everything.
	if caps := table.Caps[perms.SubjKey{Role: "alice", Subject: "/"}]; !caps.Empty() {
		t.Errorf("root subject caps = %v, want empty", caps)
	}
}

func TestInheritCapabilityDeltas(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /
	/ h
	-CAP_ALL
subject /usr
	/usr r
	+CAP_SETUID
`)
	// Parent deltas run first: -CAP_ALL, then the child's +CAP_SETUID.
	caps := table.Caps[perms.SubjKey{Role: "alice", Subject: "/usr"}]
	if !caps.Contains(perms.CapSetUID) || caps.Contains(perms.CapSetGID) {
		t.Errorf("inherited caps = %v, want exactly CAP_SETUID", caps)
	}
}

func TestPredicates(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /
	/ h
	/etc r
	/etc/shadow rh
	/var/log ra
	/tmp rwx
	/bin x
`)
	testCases := []struct {
		desc   string
		object string
		read   bool
		write  bool
		exec   bool
	}{
		{desc: "hidden wins over read", object: "/etc/shadow", read: false, write: false, exec: false},
		{desc: "plain read", object: "/etc/passwd", read: true, write: false, exec: false},
		{desc: "append counts as write", object: "/var/log/messages", read: true, write: true, exec: false},
		{desc: "full access", object: "/tmp/x", read: true, write: true, exec: true},
		{desc: "exec only", object: "/bin/sh", read: false, write: false, exec: true},
		{desc: "hidden root fallback", object: "/opt/x", read: false, write: false, exec: false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := table.Read("alice", "/", tc.object); got != tc.read {
				t.Errorf("Read(%s) = %v, want %v", tc.object, got, tc.read)
			}
			if got := table.Write("alice", "/", tc.object); got != tc.write {
				t.Errorf("Write(%s) = %v, want %v", tc.object, got, tc.write)
			}
			if got := table.Exec("alice", "/", tc.object); got != tc.exec {
				t.Errorf("Exec(%s) = %v, want %v", tc.object, got, tc.exec)
			}
		})
	}
}

func TestMatchSemanticError(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /usr
	/usr r
`)
	if _, err := table.Match("alice", "/etc"); err == nil {
		t.Errorf("Match(alice, /etc) succeeded, want semantic error")
	}
}

func TestObjectsWithPerm(t *testing.T) {
	table := mustTable(t, `
role alice u
subject /
	/ h
	/tmp rw
	/var a
	/bin rx
	/secret wh
`)
	testCases := []struct {
		mode byte
		want []string
	}{
		{mode: 'r', want: []string{"/bin", "/tmp"}},
		{mode: 'w', want: []string{"/tmp", "/var"}},
		{mode: 'x', want: []string{"/bin"}},
	}
	for _, tc := range testCases {
		got := table.ObjectsWithPerm("alice", "/", tc.mode)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("ObjectsWithPerm(%c): unexpected objects (-want +got):\n%s", tc.mode, diff)
		}
	}
}
