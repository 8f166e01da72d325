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

// Package stategraph materialises the RBAC transition system of a policy:
// the reachable (special, user, group, subject) states, the labelled
// transitions between them under role change, UID/GID change and exec
// semantics, and the reachability walks the flow analysers run on top.
package stategraph

import (
	"github.com/secgroup/gran/perms"
	"github.com/secgroup/gran/policy"
)

// DontCare is the sentinel role name meaning "any role or none".
const DontCare = perms.DontCare

// State is an RBAC state: the active special, user and group roles (or
// DontCare) and the executing subject path.
type State struct {
	Special string
	User    string
	Group   string
	Subject string
}

// EffRole resolves the state's effective role: the first occupied slot in
// special, user, group scan order, falling back to the default role.
func EffRole(t *perms.Table, s State) (string, policy.RoleKind) {
	for _, name := range []string{s.Special, s.User, s.Group} {
		if name == DontCare {
			continue
		}
		if info, ok := t.Roles[name]; ok {
			switch info.Kind {
			case policy.KindSpecial, policy.KindUser, policy.KindGroup:
				return name, info.Kind
			}
		}
	}
	return policy.DefaultRoleName, policy.KindDefault
}

// Format renders the state for output as role:KIND:subject, with the
// effective role's upper-case kind letter.
func (s State) Format(t *perms.Table) string {
	name, kind := EffRole(t, s)
	return name + ":" + kind.Letter() + ":" + s.Subject
}

// Less orders states lexicographically by slot, for deterministic output of
// results collected from map iteration.
func (s State) Less(o State) bool {
	if s.Special != o.Special {
		return s.Special < o.Special
	}
	if s.User != o.User {
		return s.User < o.User
	}
	if s.Group != o.Group {
		return s.Group < o.Group
	}
	return s.Subject < o.Subject
}

// LabelKind distinguishes the transition label variants.
type LabelKind int

// LabelKind values.
const (
	SetRole LabelKind = iota
	SetUID
	SetGID
	Exec
)

// Label is a transition label: the operation that moves the system between
// two states, with its role, user, group or object path argument.
type Label struct {
	Kind LabelKind
	Arg  string
}

func (l Label) String() string {
	switch l.Kind {
	case SetRole:
		return "set_role(" + l.Arg + ")"
	case SetUID:
		return "set_UID(" + l.Arg + ")"
	case SetGID:
		return "set_GID(" + l.Arg + ")"
	default:
		return "exec(" + l.Arg + ")"
	}
}

// Edge is one outgoing transition of a state.
type Edge struct {
	Label Label
	To    State
}

// Step is one element of a reverse-renderable path: the predecessor state
// and the label taken from it.
type Step struct {
	From  State
	Label Label
}
