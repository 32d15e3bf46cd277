package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render(t *testing.T) {
	tmpl := MustParse("answer", "Context:\n{{context}}\n\nQuestion: {{question}} ({{question}})")
	assert.Equal(t, []string{"context", "question"}, tmpl.Variables())

	out, err := tmpl.Render(map[string]string{"context": "doc", "question": "why {{context}}?"})
	require.NoError(t, err)
	assert.Equal(t, "Context:\ndoc\n\nQuestion: why {{context}}? (why {{context}}?)", out)
}

func TestTemplate_MissingVariables(t *testing.T) {
	tmpl := MustParse("t", "{{a}} {{b}}")
	_, err := tmpl.Render(map[string]string{"a": "x"})
	assert.ErrorContains(t, err, "missing variables: b")
}

func TestParse_NoVariables(t *testing.T) {
	_, err := Parse("static", "hello")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParse("static", "hello") })
}
