package resolver

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kingrea/pipectx/internal/pipeline"
)

const (
	tokenProject = "project"
	tokenTaskID  = "task_id"
	tokenStep    = "step"
)

var tokenPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Template maps scene paths onto context fields. Tokens are written as
// {name}: {project}, {task_id} and {step} are reserved, a capitalised token
// such as {Shot} carries the id of an entity of that type, and anything else
// matches one path segment and is discarded. Patterns starting with "/" must
// match the whole path; other patterns match a trailing run of segments.
type Template struct {
	pattern string
	re      *regexp.Regexp
	tokens  []string
}

// Match is what a template extracted from a path.
type Match struct {
	Project string
	Entity  *pipeline.EntityRef
	TaskID  int
	Step    string
}

// ParseTemplate compiles a template pattern.
func ParseTemplate(pattern string) (*Template, error) {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, fmt.Errorf("resolver: template pattern is required")
	}
	var (
		expr   strings.Builder
		tokens []string
		last   int
	)
	if strings.HasPrefix(pattern, "/") {
		expr.WriteString("^")
	} else {
		expr.WriteString("(?:^|/)")
	}
	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(pattern, -1) {
		expr.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		name := pattern[loc[2]:loc[3]]
		switch name {
		case tokenTaskID:
			expr.WriteString(`([0-9]+)`)
		default:
			expr.WriteString(`([^/]+?)`)
		}
		tokens = append(tokens, name)
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(pattern[last:]))
	expr.WriteString("$")
	if strings.ContainsAny(tokenPattern.ReplaceAllString(pattern, ""), "{}") {
		return nil, fmt.Errorf("resolver: template %q has unbalanced braces", pattern)
	}
	if !containsToken(tokens, tokenProject) {
		return nil, fmt.Errorf("resolver: template %q must contain {project}", pattern)
	}
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("resolver: compile template %q: %w", pattern, err)
	}
	return &Template{pattern: pattern, re: re, tokens: tokens}, nil
}

// Pattern returns the source pattern.
func (t *Template) Pattern() string {
	return t.pattern
}

// Match applies the template to path.
func (t *Template) Match(path string) (Match, bool) {
	path = filepath.ToSlash(filepath.Clean(path))
	groups := t.re.FindStringSubmatch(path)
	if groups == nil {
		return Match{}, false
	}
	var m Match
	for i, name := range t.tokens {
		value := groups[i+1]
		switch {
		case name == tokenProject:
			m.Project = value
		case name == tokenTaskID:
			id, err := strconv.Atoi(value)
			if err != nil || id <= 0 {
				return Match{}, false
			}
			m.TaskID = id
		case name == tokenStep:
			m.Step = value
		case isEntityToken(name):
			m.Entity = &pipeline.EntityRef{Type: name, ID: value}
		}
	}
	if m.Project == "" {
		return Match{}, false
	}
	return m, true
}

// Locate renders the directory part of the template for c. Segments are
// filled from the project, entity and task of c; rendering stops at the first
// segment holding a token c cannot fill. A template keyed on another entity
// type does not apply.
func (t *Template) Locate(c pipeline.Context) (string, bool) {
	if c.Project == nil {
		return "", false
	}
	for _, name := range t.tokens {
		if isEntityToken(name) && c.Entity != nil && name != c.Entity.Type {
			return "", false
		}
	}
	segments := strings.Split(t.pattern, "/")
	if len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}
	var (
		out        []string
		sawProject bool
	)
	for _, segment := range segments {
		filled, ok := fillSegment(segment, c)
		if !ok {
			break
		}
		if strings.Contains(segment, "{"+tokenProject+"}") {
			sawProject = true
		}
		out = append(out, filled)
	}
	if !sawProject {
		return "", false
	}
	return strings.Join(out, "/"), true
}

func fillSegment(segment string, c pipeline.Context) (string, bool) {
	ok := true
	filled := tokenPattern.ReplaceAllStringFunc(segment, func(token string) string {
		name := token[1 : len(token)-1]
		switch {
		case name == tokenProject:
			return c.Project.Name
		case name == tokenTaskID && c.Task != nil:
			return strconv.Itoa(c.Task.ID)
		case name == tokenStep && c.Task != nil:
			return c.Task.Step
		case isEntityToken(name) && c.Entity != nil && c.Entity.Type == name:
			return c.Entity.ID
		}
		ok = false
		return token
	})
	return filled, ok
}

func isEntityToken(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func containsToken(tokens []string, want string) bool {
	for _, token := range tokens {
		if token == want {
			return true
		}
	}
	return false
}
