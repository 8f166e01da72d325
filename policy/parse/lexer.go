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

package parse

import (
	"regexp"
	"strings"
)

// TokenKind classifies a single policy token.
type TokenKind int

// TokenKind values.
const (
	TokReserved TokenKind = iota
	TokCap                // +CAP_X / -CAP_X
	TokPax                // +PAX_X / -PAX_X
	TokRes                // RES_X resource limit keyword
	TokNum                // numeric limit, optional unit suffix
	TokIP                 // dotted IPv4, optional /mask
	TokPort               // :port or :port-port
	TokPath               // absolute filesystem path, may contain glob chars
	TokIdent              // fallback identifier
)

// Token is one whitespace-delimited policy token with its source line.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

// reservedWords are the keywords of the policy language. connect and bind
// arrive here already rewritten by the preprocessor.
var reservedWords = map[string]bool{
	"role":                   true,
	"domain":                 true,
	"subject":                true,
	"role_transitions":       true,
	"user_transition_allow":  true,
	"user_transition_deny":   true,
	"group_transition_allow": true,
	"group_transition_deny":  true,
	"ip_override":            true,
	"connect_reserved":       true,
	"bind_reserved":          true,
	"disabled":               true,
	"sock_allow_family":      true,
}

var (
	capRe  = regexp.MustCompile(`^[+-]CAP_\w+$`)
	paxRe  = regexp.MustCompile(`^[+-]PAX_\w+$`)
	resRe  = regexp.MustCompile(`^RES_\w+$`)
	numRe  = regexp.MustCompile(`^\d+[a-zA-Z]?$`)
	ipRe   = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}(/\d{1,2})?$`)
	portRe = regexp.MustCompile(`^:\d+(-\d+)?$`)
	pathRe = regexp.MustCompile(`^/[\w*?.+\-/!\[\]]*$`)
)

func classify(field string) TokenKind {
	switch {
	case reservedWords[field]:
		return TokReserved
	case capRe.MatchString(field):
		return TokCap
	case paxRe.MatchString(field):
		return TokPax
	case resRe.MatchString(field):
		return TokRes
	case numRe.MatchString(field):
		return TokNum
	case ipRe.MatchString(field):
		return TokIP
	case portRe.MatchString(field):
		return TokPort
	case pathRe.MatchString(field):
		return TokPath
	default:
		return TokIdent
	}
}

// Lex tokenises a preprocessed policy buffer. The grammar is line oriented,
// so tokens are returned grouped by line; blank lines yield no group.
func Lex(text string) [][]Token {
	var lines [][]Token
	for i, raw := range strings.Split(text, "\n") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		toks := make([]Token, 0, len(fields))
		for _, f := range fields {
			toks = append(toks, Token{Kind: classify(f), Text: f, Line: i + 1})
		}
		lines = append(lines, toks)
	}
	return lines
}
