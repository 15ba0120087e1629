package engine

import (
	"strings"
)

// ParseVariables replaces ${key} and ${key:default} tokens with values from
// vars. Unknown keys without a default are left untouched.
func ParseVariables(text string, vars map[string]string) string {
	if !strings.Contains(text, "${") {
		return text
	}
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		token := rest[start+2 : end]
		key, def, hasDefault := strings.Cut(token, ":")
		if v, ok := vars[key]; ok {
			b.WriteString(v)
		} else if hasDefault {
			b.WriteString(def)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return b.String()
}
