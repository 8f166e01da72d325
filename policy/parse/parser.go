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

// Package parse tokenises and parses a preprocessed grsecurity policy buffer
// into the policy AST, and expands domain declarations into per-user roles.
//
// IP ACL rules (connect/bind), socket family restrictions, PAX flags and
// resource limits are recognised and discarded: they have no bearing on
// information flow.
package parse

import (
	"fmt"
	"strings"

	"bitbucket.org/creachadair/stringset"
	"github.com/secgroup/gran/policy"
)

// Policy parses a preprocessed buffer into a policy. Domain declarations are
// kept as-is; run ExpandDomains on the result before building permissions.
func Policy(text string) (*policy.Policy, error) {
	p := &parser{}
	for _, line := range Lex(text) {
		if err := p.line(line); err != nil {
			return nil, err
		}
	}
	return &policy.Policy{Roles: p.roles}, nil
}

type parser struct {
	roles []*policy.Role
	role  *policy.Role    // current role, nil before the first declaration
	subj  *policy.Subject // current subject, nil outside a subject body
}

func (p *parser) line(toks []Token) error {
	head := toks[0]
	if head.Kind == TokReserved {
		switch head.Text {
		case "role":
			return p.roleDecl(toks, false)
		case "domain":
			return p.roleDecl(toks, true)
		case "role_transitions":
			return p.roleTransitions(toks)
		case "subject":
			return p.subjectDecl(toks)
		case "user_transition_allow":
			return p.transPolicy(toks, true, policy.TransAllow)
		case "user_transition_deny":
			return p.transPolicy(toks, true, policy.TransDeny)
		case "group_transition_allow":
			return p.transPolicy(toks, false, policy.TransAllow)
		case "group_transition_deny":
			return p.transPolicy(toks, false, policy.TransDeny)
		case "connect_reserved", "bind_reserved", "sock_allow_family", "ip_override", "disabled":
			// IP and socket ACLs are outside the flow model.
			return nil
		}
		return perr(head.Line, "unexpected keyword %q", head.Text)
	}

	switch head.Kind {
	case TokCap:
		if p.subj == nil {
			return perr(head.Line, "capability %q outside a subject", head.Text)
		}
		p.subj.CapDeltas = append(p.subj.CapDeltas, policy.CapDelta{
			Add:  head.Text[0] == '+',
			Name: head.Text[1:],
		})
		return nil
	case TokPax, TokRes:
		// PAX flags and resource limits are parsed and discarded.
		return nil
	case TokPath:
		return p.object(toks)
	default:
		return perr(head.Line, "unexpected token %q", head.Text)
	}
}

func (p *parser) roleDecl(toks []Token, domain bool) error {
	line := toks[0].Line
	args := toks[1:]
	if len(args) == 0 {
		return perr(line, "role declaration without a name")
	}
	r := &policy.Role{Name: args[0].Text}
	mode := ""
	if domain {
		if len(args) < 3 {
			return perr(line, "domain %q needs a mode and at least one user", r.Name)
		}
		mode = args[1].Text
		for _, u := range args[2:] {
			r.Users = append(r.Users, u.Text)
		}
	} else if len(args) > 1 {
		mode = args[1].Text
	}
	r.Mode = mode
	kind, err := kindOf(r.Name, mode, line)
	if err != nil {
		return err
	}
	r.Kind = kind
	r.Admin = strings.ContainsRune(mode, 'A')
	p.roles = append(p.roles, r)
	p.role, p.subj = r, nil
	return nil
}

// kindOf derives the role kind from the mode flags. A role must carry
// exactly one of the s/u/g kind flags; the default role carries none and
// gets the default kind.
func kindOf(name, mode string, line int) (policy.RoleKind, error) {
	var kinds []policy.RoleKind
	for _, c := range mode {
		switch c {
		case 's':
			kinds = append(kinds, policy.KindSpecial)
		case 'u':
			kinds = append(kinds, policy.KindUser)
		case 'g':
			kinds = append(kinds, policy.KindGroup)
		}
	}
	switch {
	case len(kinds) == 1:
		return kinds[0], nil
	case len(kinds) == 0 && name == policy.DefaultRoleName:
		return policy.KindDefault, nil
	case len(kinds) == 0:
		return 0, perr(line, "role %q has no kind flag", name)
	default:
		return 0, perr(line, "role %q has %d kind flags, want one", name, len(kinds))
	}
}

func (p *parser) roleTransitions(toks []Token) error {
	if p.role == nil {
		return perr(toks[0].Line, "role_transitions outside a role")
	}
	for _, t := range toks[1:] {
		p.role.Transitions = append(p.role.Transitions, t.Text)
	}
	return nil
}

func (p *parser) subjectDecl(toks []Token) error {
	line := toks[0].Line
	if p.role == nil {
		return perr(line, "subject outside a role")
	}
	if len(toks) < 2 {
		return perr(line, "subject declaration without a path")
	}
	path := toks[1].Text
	if strings.Contains(path, ":") {
		return perr(line, "nested subject paths (%q) are not supported", path)
	}
	s := &policy.Subject{Path: path}
	if len(toks) > 2 {
		s.Mode = toks[2].Text
	}
	p.role.Subjects = append(p.role.Subjects, s)
	p.subj = s
	return nil
}

func (p *parser) transPolicy(toks []Token, user bool, kind policy.TransPolicyKind) error {
	if p.subj == nil {
		return perr(toks[0].Line, "%s outside a subject", toks[0].Text)
	}
	names := stringset.New()
	for _, t := range toks[1:] {
		names.Add(t.Text)
	}
	// Conflicting clauses on one subject: the last parsed one wins, as in
	// the original tool.
	tp := policy.TransPolicy{Kind: kind, Roles: names}
	if user {
		p.subj.UserTrans = tp
	} else {
		p.subj.GroupTrans = tp
	}
	return nil
}

func (p *parser) object(toks []Token) error {
	line := toks[0].Line
	if p.subj == nil {
		return perr(line, "object %q outside a subject", toks[0].Text)
	}
	perms := ""
	if len(toks) > 1 {
		perms = toks[1].Text
	}
	p.subj.Objects = append(p.subj.Objects, policy.Object{Path: toks[0].Text, Perms: perms})
	return nil
}

func perr(line int, format string, args ...any) error {
	return &policy.ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}
