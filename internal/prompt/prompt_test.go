package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		template string
		user     string
		variants []string
		want     string
	}{
		{
			name:     "aliases listed",
			template: "Tasks for {userName}{nameVariations}.",
			user:     "Alex",
			variants: []string{"Alex", "Alexandra", "AJ"},
			want:     `Tasks for Alex (also referred to as "Alexandra", "AJ").`,
		},
		{
			name:     "single name has no clause",
			template: "Tasks for {userName}{nameVariations}.",
			user:     "Alex",
			variants: []string{"Alex"},
			want:     "Tasks for Alex.",
		},
		{
			name:     "no variants",
			template: "{userName}|{nameVariations}|",
			user:     "Sam",
			want:     "Sam||",
		},
		{
			name:     "user defaults to first variant",
			template: "{userName}{nameVariations}",
			variants: []string{"Jordan", "Jo"},
			want:     `Jordan (also referred to as "Jo")`,
		},
		{
			name:     "duplicates and case folded",
			template: "{nameVariations}",
			user:     "alex",
			variants: []string{"Alex", "AJ", "aj", " "},
			want:     ` (also referred to as "AJ")`,
		},
		{
			name:     "repeated placeholders",
			template: "{userName} and {userName}",
			user:     "Kim",
			want:     "Kim and Kim",
		},
		{
			name:     "template without placeholders",
			template: "static",
			user:     "Kim",
			variants: []string{"K"},
			want:     "static",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Build(tt.template, tt.user, tt.variants))
		})
	}
}

func TestDefaultSystemTemplate(t *testing.T) {
	out := Build(DefaultSystemTemplate, "Alex", []string{"Alex", "AJ"})
	assert.NotContains(t, out, UserNamePlaceholder)
	assert.NotContains(t, out, NameVariationsPlaceholder)
	assert.True(t, strings.HasPrefix(out, `You extract action items from text written to or by Alex (also referred to as "AJ").`))
	assert.Contains(t, out, `"tasks"`)
}
