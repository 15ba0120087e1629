package catalog

import (
	"go/ast"
	"strings"
)

// DirectivePrefix starts an annotation line in a doc comment.
const DirectivePrefix = "//sqlmapper:"

// ParseDirectives extracts annotations from comment lines. A directive is
// `//sqlmapper:<Name>` optionally followed by a space and a value.
func ParseDirectives(lines []string) []Annotation {
	var out []Annotation
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, DirectivePrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, DirectivePrefix)
		name, value, _ := strings.Cut(rest, " ")
		if name == "" {
			continue
		}
		out = append(out, Annotation{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

func commentDirectives(groups ...*ast.CommentGroup) []Annotation {
	var lines []string
	for _, g := range groups {
		if g == nil {
			continue
		}
		for _, c := range g.List {
			lines = append(lines, c.Text)
		}
	}
	return ParseDirectives(lines)
}
