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

import "github.com/secgroup/gran/policy"

// ExpandDomains replaces every domain declaration with one role per bound
// user, each sharing the domain's kind, transitions and subjects. Ordinary
// roles pass through unchanged.
func ExpandDomains(p *policy.Policy) *policy.Policy {
	out := &policy.Policy{Roles: make([]*policy.Role, 0, len(p.Roles))}
	for _, r := range p.Roles {
		if len(r.Users) == 0 {
			out.Roles = append(out.Roles, r)
			continue
		}
		for _, u := range r.Users {
			out.Roles = append(out.Roles, &policy.Role{
				Name:        u,
				Kind:        r.Kind,
				Admin:       r.Admin,
				Mode:        r.Mode,
				Transitions: r.Transitions,
				Subjects:    r.Subjects,
			})
		}
	}
	return out
}
