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

// Package preprocess turns a grsecurity policy file tree into a single text
// buffer ready for lexing. It resolves include directives, expands replace
// and define macros, strips comments and braces, and rewrites the keywords
// that collide with identifier syntax.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// etcGrsecPrefix is stripped from absolute include targets so policies
// written for the standard install location can be analysed from anywhere.
const etcGrsecPrefix = "/etc/grsec"

var (
	includeRe     = regexp.MustCompile(`(?m)^[ \t]*include[ \t]+(\S+)[ \t]*$`)
	commentRe     = regexp.MustCompile(`#[^\n]*`)
	replaceRe     = regexp.MustCompile(`(?m)^[ \t]*replace[ \t]+(\S+)[ \t]+(.*)$`)
	defineRe      = regexp.MustCompile(`(?s)define[ \t]+(\w+)[ \t]*\{(.*?)\}`)
	reservedRe    = regexp.MustCompile(`(?m)^([ \t]*)(connect|bind)\b`)
	roleAllowIPRe = regexp.MustCompile(`(?m)^[ \t]*role_allow_ip\b[^\n]*\n?`)
)

// Expand preprocesses the policy rooted at path and returns the resulting
// buffer. path may be a single policy file or a directory, in which case its
// entries are concatenated the same way an include of that directory would
// be. A missing or unreadable file is a fatal error.
func Expand(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("opening policy %q: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	if info.IsDir() {
		baseDir = path
	}

	text, err := resolve(path, baseDir)
	if err != nil {
		return "", err
	}

	text = commentRe.ReplaceAllString(text, "")
	text = expandReplaces(text)
	text = expandDefines(text)
	text = strings.ReplaceAll(text, "{", "")
	text = strings.ReplaceAll(text, "}", "")
	text = reservedRe.ReplaceAllString(text, "${1}${2}_reserved")
	text = roleAllowIPRe.ReplaceAllString(text, "")
	return text, nil
}

// resolve reads path, recursively splicing in the content of every include
// directive. Includes are resolved against the root policy's directory, with
// the standard /etc/grsec prefix stripped from absolute targets. A directory
// expands to the concatenation of its entries in name order, hidden files
// included.
func resolve(path, baseDir string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("opening policy %q: %w", path, err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", fmt.Errorf("reading policy directory %q: %w", path, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		var sb strings.Builder
		for _, e := range entries {
			part, err := resolve(filepath.Join(path, e.Name()), baseDir)
			if err != nil {
				return "", err
			}
			sb.WriteString(part)
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading policy %q: %w", path, err)
	}
	text := string(raw)

	var resolveErr error
	text = includeRe.ReplaceAllStringFunc(text, func(line string) string {
		if resolveErr != nil {
			return ""
		}
		target := includeRe.FindStringSubmatch(line)[1]
		target = strings.TrimPrefix(target, etcGrsecPrefix)
		target = strings.TrimPrefix(target, "/")
		part, err := resolve(filepath.Join(baseDir, target), baseDir)
		if err != nil {
			resolveErr = err
			return ""
		}
		return part
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return text, nil
}

// expandReplaces applies every "replace NAME VALUE" rule: all occurrences of
// the literal $(NAME) are substituted with VALUE and the declaration itself
// is removed.
func expandReplaces(text string) string {
	for _, m := range replaceRe.FindAllStringSubmatch(text, -1) {
		name, value := m[1], strings.TrimRight(m[2], " \t")
		text = strings.ReplaceAll(text, "$("+name+")", value)
	}
	return replaceRe.ReplaceAllString(text, "")
}

// expandDefines applies every "define NAME { BODY }" block: all occurrences
// of $NAME are substituted with BODY (which may span lines) and the
// declaration is removed.
func expandDefines(text string) string {
	for _, m := range defineRe.FindAllStringSubmatch(text, -1) {
		name, body := m[1], m[2]
		text = strings.ReplaceAll(text, "$"+name, body)
	}
	return defineRe.ReplaceAllString(text, "")
}
