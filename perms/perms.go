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

// Package perms builds the permission, capability and transition tables of a
// parsed policy and runs the inheritance closure over them. The resulting
// Table is frozen after Inherit and shared read-only with the transition
// graph builder and the flow analysers.
package perms

import (
	"fmt"
	"sort"

	"bitbucket.org/creachadair/stringset"
	"github.com/secgroup/gran/pathmatch"
	"github.com/secgroup/gran/policy"
)

// The two capabilities with flow semantics. Everything else is parsed and
// discarded.
const (
	CapSetUID = "CAP_SETUID"
	CapSetGID = "CAP_SETGID"
	CapAll    = "CAP_ALL"
)

// DontCare is the sentinel role name meaning "any role or none".
const DontCare = "_"

// capUniverse is the tracked capability universe.
var capUniverse = stringset.New(CapSetUID, CapSetGID)

// PermKey indexes the permission table.
type PermKey struct {
	Role    string
	Subject string
	Object  string
}

// SubjKey indexes the per-(role, subject) tables.
type SubjKey struct {
	Role    string
	Subject string
}

// RoleInfo is the per-role slice of the table.
type RoleInfo struct {
	Kind        policy.RoleKind
	Admin       bool
	Transitions []string
}

// SemanticError reports a subject path that matches no declared subject of
// its role, which leaves the analysis without a permission context.
type SemanticError struct {
	Role string
	Path string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("subject %q matches no subject path of role %q", e.Path, e.Role)
}

// Table holds the complete permission state of a policy.
type Table struct {
	// Roles maps role name to its kind, admin flag and allowed transitions.
	Roles map[string]*RoleInfo
	// Role names partitioned by kind.
	SpecialRoles stringset.Set
	UserRoles    stringset.Set
	GroupRoles   stringset.Set
	// AllSubjects is the sorted set of subject paths declared in any role.
	AllSubjects []string
	// Perms maps (role, subject, object) to the object's permission string.
	Perms map[PermKey]string
	// RoleSubjects maps role name to subject path to the subject's mode.
	RoleSubjects map[string]map[string]string
	// CapDeltas holds the accumulated capability delta list per subject
	// (parent deltas first after inheritance).
	CapDeltas map[SubjKey][]policy.CapDelta
	// Caps is the effective capability set per subject.
	Caps map[SubjKey]stringset.Set
	// UserTrans and GrpTrans are the allowed user/group transition targets
	// per subject, DONTCARE included where permitted.
	UserTrans map[SubjKey]stringset.Set
	GrpTrans  map[SubjKey]stringset.Set

	// objects caches, per (role, subject), the sorted object paths with a
	// permission entry.
	objects map[SubjKey][]string
	// subjects caches, per role, the sorted subject paths.
	subjects map[string][]string
}

// Build walks a domain-expanded policy and materialises its tables. The
// result still needs Inherit before it reflects permission inheritance.
func Build(p *policy.Policy) (*Table, error) {
	t := &Table{
		Roles:        map[string]*RoleInfo{},
		SpecialRoles: stringset.New(),
		UserRoles:    stringset.New(),
		GroupRoles:   stringset.New(),
		Perms:        map[PermKey]string{},
		RoleSubjects: map[string]map[string]string{},
		CapDeltas:    map[SubjKey][]policy.CapDelta{},
		Caps:         map[SubjKey]stringset.Set{},
		UserTrans:    map[SubjKey]stringset.Set{},
		GrpTrans:     map[SubjKey]stringset.Set{},
		objects:      map[SubjKey][]string{},
		subjects:     map[string][]string{},
	}

	// First pass: register roles so transition-set computation can see the
	// full user and group role populations.
	for _, r := range p.Roles {
		t.Roles[r.Name] = &RoleInfo{Kind: r.Kind, Admin: r.Admin, Transitions: r.Transitions}
		switch r.Kind {
		case policy.KindSpecial:
			t.SpecialRoles.Add(r.Name)
		case policy.KindUser:
			t.UserRoles.Add(r.Name)
		case policy.KindGroup:
			t.GroupRoles.Add(r.Name)
		}
	}

	allSubjects := stringset.New()
	for _, r := range p.Roles {
		subjModes, ok := t.RoleSubjects[r.Name]
		if !ok {
			subjModes = map[string]string{}
			t.RoleSubjects[r.Name] = subjModes
		}
		for _, s := range r.Subjects {
			key := SubjKey{r.Name, s.Path}
			subjModes[s.Path] = s.Mode
			allSubjects.Add(s.Path)
			for _, o := range s.Objects {
				t.Perms[PermKey{r.Name, s.Path, o.Path}] = o.Perms
			}
			t.CapDeltas[key] = s.CapDeltas
			t.UserTrans[key] = transSet(s.UserTrans, t.UserRoles)
			t.GrpTrans[key] = transSet(s.GroupTrans, t.GroupRoles)
		}
	}
	t.AllSubjects = allSubjects.Elements()

	for role, subjModes := range t.RoleSubjects {
		paths := make([]string, 0, len(subjModes))
		for p := range subjModes {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		t.subjects[role] = paths
	}
	for k := range t.Perms {
		sk := SubjKey{k.Role, k.Subject}
		t.objects[sk] = append(t.objects[sk], k.Object)
	}
	for _, objs := range t.objects {
		sort.Strings(objs)
	}
	return t, nil
}

// transSet resolves a subject's user or group transition policy against the
// role population of the respective kind.
func transSet(tp policy.TransPolicy, all stringset.Set) stringset.Set {
	switch tp.Kind {
	case policy.TransAllow:
		allowed := tp.Roles.Intersect(all)
		// Naming a non-role in an allow clause stands for "no role", so the
		// DONTCARE target stays available.
		if !tp.Roles.Diff(all).Empty() {
			allowed.Add(DontCare)
		}
		return allowed
	case policy.TransDeny:
		return all.Union(stringset.New(DontCare)).Diff(tp.Roles)
	default:
		return all.Union(stringset.New(DontCare))
	}
}

// CapCompute derives the effective capability set from a delta list. The set
// starts at the full tracked universe; CAP_ALL swings the whole universe and
// individual deltas toggle membership. Capabilities outside the universe are
// discarded.
func CapCompute(deltas []policy.CapDelta) stringset.Set {
	caps := capUniverse.Clone()
	for _, d := range deltas {
		switch {
		case d.Name == CapAll && d.Add:
			caps = capUniverse.Clone()
		case d.Name == CapAll:
			caps = stringset.New()
		case capUniverse.Contains(d.Name) && d.Add:
			caps.Add(d.Name)
		case capUniverse.Contains(d.Name):
			caps.Discard(d.Name)
		}
	}
	return caps
}

// Inherit runs the inheritance closure: inside each role, every subject
// without the 'o' override flag inherits permissions and capability deltas
// from its greatest matching proper prefix subject. Child permission entries
// win over inherited ones. Subjects are processed in ascending path-length
// order so parents are closed before their children.
func (t *Table) Inherit() {
	for role, subjModes := range t.RoleSubjects {
		var override, inherit []string
		for path, mode := range subjModes {
			if hasFlag(mode, 'o') {
				override = append(override, path)
			} else {
				inherit = append(inherit, path)
			}
		}
		for _, path := range override {
			key := SubjKey{role, path}
			t.Caps[key] = CapCompute(t.CapDeltas[key])
		}
		sort.Slice(inherit, func(i, j int) bool {
			if len(inherit[i]) != len(inherit[j]) {
				return len(inherit[i]) < len(inherit[j])
			}
			return inherit[i] < inherit[j]
		})
		for _, path := range inherit {
			key := SubjKey{role, path}
			parent, ok := t.parentOf(role, path)
			if !ok {
				t.Caps[key] = CapCompute(t.CapDeltas[key])
				continue
			}
			pkey := SubjKey{role, parent}
			deltas := make([]policy.CapDelta, 0, len(t.CapDeltas[pkey])+len(t.CapDeltas[key]))
			deltas = append(deltas, t.CapDeltas[pkey]...)
			deltas = append(deltas, t.CapDeltas[key]...)
			t.CapDeltas[key] = deltas
			t.Caps[key] = CapCompute(deltas)

			for _, obj := range t.objects[pkey] {
				ck := PermKey{role, path, obj}
				if _, exists := t.Perms[ck]; exists {
					continue
				}
				t.Perms[ck] = t.Perms[PermKey{role, parent, obj}]
				t.objects[key] = append(t.objects[key], obj)
			}
			sort.Strings(t.objects[key])
		}
	}
}

// parentOf returns the greatest matching path among the role's other
// subjects.
func (t *Table) parentOf(role, path string) (string, bool) {
	others := make([]string, 0, len(t.subjects[role]))
	for _, s := range t.subjects[role] {
		if s != path {
			others = append(others, s)
		}
	}
	return pathmatch.GMP(others, path)
}

func hasFlag(mode string, flag rune) bool {
	for _, c := range mode {
		if c == flag {
			return true
		}
	}
	return false
}

// Match resolves a running subject path to the declared subject governing it
// in the given role, via greatest-matching-path over the role's subjects. A
// subject with no governing declaration is a fatal semantic error.
func (t *Table) Match(role, path string) (string, error) {
	m, ok := pathmatch.GMP(t.subjects[role], path)
	if !ok {
		return "", &SemanticError{Role: role, Path: path}
	}
	return m, nil
}

// Objects returns the sorted object paths with a permission entry under
// (role, subject).
func (t *Table) Objects(role, subject string) []string {
	return t.objects[SubjKey{role, subject}]
}

// permFor resolves the permission string governing an object path: the entry
// of the greatest matching object path declared under (role, subject).
func (t *Table) permFor(role, subject, object string) (string, bool) {
	o, ok := pathmatch.GMP(t.objects[SubjKey{role, subject}], object)
	if !ok {
		return "", false
	}
	pis, ok := t.Perms[PermKey{role, subject, o}]
	return pis, ok
}

// Read reports whether the object is readable under (role, subject). A
// missing entry means not permitted; the hidden flag suppresses everything.
func (t *Table) Read(role, subject, object string) bool {
	pis, ok := t.permFor(role, subject, object)
	return ok && hasFlag(pis, 'r') && !hasFlag(pis, 'h')
}

// Write reports whether the object is writable (w, a or c) under
// (role, subject).
func (t *Table) Write(role, subject, object string) bool {
	pis, ok := t.permFor(role, subject, object)
	if !ok || hasFlag(pis, 'h') {
		return false
	}
	return hasFlag(pis, 'w') || hasFlag(pis, 'a') || hasFlag(pis, 'c')
}

// Exec reports whether the object is executable under (role, subject).
func (t *Table) Exec(role, subject, object string) bool {
	pis, ok := t.permFor(role, subject, object)
	return ok && hasFlag(pis, 'x') && !hasFlag(pis, 'h')
}

// HasPerm reports whether the object carries the given permission mode
// ('r', 'w' or 'x') under (role, subject), honouring the write aliases and
// the hidden flag.
func (t *Table) HasPerm(role, subject, object string, mode byte) bool {
	switch mode {
	case 'r':
		return t.Read(role, subject, object)
	case 'w':
		return t.Write(role, subject, object)
	case 'x':
		return t.Exec(role, subject, object)
	}
	return false
}

// ObjectsWithPerm returns the object paths declared under (role, subject)
// whose own permission string carries the given mode ('r', 'w' with its
// aliases, or 'x') and is not hidden.
func (t *Table) ObjectsWithPerm(role, subject string, mode byte) []string {
	var out []string
	for _, o := range t.objects[SubjKey{role, subject}] {
		pis := t.Perms[PermKey{role, subject, o}]
		if hasFlag(pis, 'h') {
			continue
		}
		ok := false
		switch mode {
		case 'r':
			ok = hasFlag(pis, 'r')
		case 'w':
			ok = hasFlag(pis, 'w') || hasFlag(pis, 'a') || hasFlag(pis, 'c')
		case 'x':
			ok = hasFlag(pis, 'x')
		}
		if ok {
			out = append(out, o)
		}
	}
	return out
}

// AdminRoles returns the names of roles carrying the administrative flag.
func (t *Table) AdminRoles() stringset.Set {
	admins := stringset.New()
	for name, info := range t.Roles {
		if info.Admin {
			admins.Add(name)
		}
	}
	return admins
}
