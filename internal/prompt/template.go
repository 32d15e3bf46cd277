package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a prompt body with {{variable}} placeholders.
type Template struct {
	Name string
	body string
	vars []string
}

// MustParse panics if body declares no variables. Use it for package-level
// templates.
func MustParse(name, body string) *Template {
	t, err := Parse(name, body)
	if err != nil {
		panic(err)
	}
	return t
}

func Parse(name, body string) (*Template, error) {
	vars := ExtractVariables(body)
	if len(vars) == 0 {
		return nil, fmt.Errorf("template %s has no variables", name)
	}
	return &Template{Name: name, body: body, vars: vars}, nil
}

func (t *Template) Variables() []string { return t.vars }

// Render substitutes every placeholder in a single pass, so values that
// themselves contain {{...}} are left alone.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: missing variables: %s", t.Name, strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(t.body, func(match string) string {
		return vars[match[2:len(match)-2]]
	}), nil
}

// ExtractVariables returns the distinct variable names in s in order of
// first appearance.
func ExtractVariables(s string) []string {
	matches := variablePattern.FindAllStringSubmatch(s, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}
