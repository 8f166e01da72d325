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

// Package policy defines the parsed representation of a grsecurity RBAC
// policy: roles, subjects, objects and their transition rules. The structures
// are produced by policy/parse and consumed read-only by the permission and
// transition-graph builders.
package policy

import (
	"fmt"

	"bitbucket.org/creachadair/stringset"
)

// DefaultRoleName is the name of the fallback role that is active when no
// special, user or group role applies.
const DefaultRoleName = "default"

// RoleKind classifies a role declaration.
type RoleKind byte

// RoleKind values, matching the single-letter mode flags of the policy
// language.
const (
	KindSpecial RoleKind = 's'
	KindUser    RoleKind = 'u'
	KindGroup   RoleKind = 'g'
	KindDefault RoleKind = 'd'
)

func (k RoleKind) String() string { return string(rune(k)) }

// Letter returns the upper-case kind letter used when rendering states.
func (k RoleKind) Letter() string {
	switch k {
	case KindSpecial:
		return "S"
	case KindUser:
		return "U"
	case KindGroup:
		return "G"
	default:
		return "D"
	}
}

// Role is a single role declaration. For a domain declaration Name is the
// domain's own name and Users holds the bound user names, until domain
// expansion splits it into one role per user.
type Role struct {
	Name        string
	Users       []string
	Kind        RoleKind
	Admin       bool
	Mode        string
	Transitions []string
	Subjects    []*Subject
}

// Subject is a subject declaration inside a role.
type Subject struct {
	Path       string
	Mode       string
	UserTrans  TransPolicy
	GroupTrans TransPolicy
	CapDeltas  []CapDelta
	Objects    []Object
}

// Override reports whether the subject carries the 'o' mode flag and is
// therefore excluded from permission inheritance.
func (s *Subject) Override() bool {
	for _, c := range s.Mode {
		if c == 'o' {
			return true
		}
	}
	return false
}

// Object is an object path with its permission string.
type Object struct {
	Path  string
	Perms string
}

// CapDelta is a single +CAP_X or -CAP_X entry on a subject.
type CapDelta struct {
	Add  bool
	Name string
}

func (d CapDelta) String() string {
	if d.Add {
		return "+" + d.Name
	}
	return "-" + d.Name
}

// TransPolicyKind distinguishes the three shapes of a per-subject user or
// group transition rule.
type TransPolicyKind int

// TransPolicyKind values.
const (
	// TransAny means no rule was declared: any transition is permitted.
	TransAny TransPolicyKind = iota
	// TransAllow restricts transitions to the named roles.
	TransAllow
	// TransDeny permits any transition except to the named roles.
	TransDeny
)

// TransPolicy is a per-subject user or group transition rule.
type TransPolicy struct {
	Kind  TransPolicyKind
	Roles stringset.Set
}

// Policy is a parsed policy. Domain declarations stay in the role list until
// domain expansion replaces them with per-user roles.
type Policy struct {
	Roles []*Role
}

// Role returns the role with the given name, or nil.
func (p *Policy) Role(name string) *Role {
	for _, r := range p.Roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RoleNames returns the names of all roles in declaration order.
func (p *Policy) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.Name)
	}
	return names
}

// ParseError is a fatal syntax or unsupported-construct error in the policy
// text.
type ParseError struct {
	Line int // 1-based line in the preprocessed buffer, 0 if unknown.
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("policy parse error at line %d: %s", e.Line, e.Msg)
	}
	return "policy parse error: " + e.Msg
}
