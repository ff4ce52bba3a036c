package prompt

import (
	"strings"
	"testing"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestComposeBeginnerDefaults(t *testing.T) {
	out := Compose("ordering food", domain.LevelBeginner, domain.DefaultProfile(domain.LevelBeginner))

	assert.Contains(t, out, "beginner")
	assert.Contains(t, out, "ordering food")
	assert.Contains(t, out, FollowUpRule)
	assert.Contains(t, out, LengthRule)
	assert.Contains(t, out, CompletionMarker)
	assert.Contains(t, out, "Vocabulary accuracy: 70%")
	assert.Contains(t, out, "moderate understanding")
	assert.NotContains(t, out, "struggles with grammar")
}

func TestComposeIsDeterministic(t *testing.T) {
	p := domain.ProficiencyProfile{Level: domain.LevelAdvanced, Vocabulary: 0.91, Grammar: 0.55, Pronunciation: 0.72, Fluency: 0.4}
	assert.Equal(t, Compose("travel", domain.LevelAdvanced, p), Compose("travel", domain.LevelAdvanced, p))
}

func TestComposeGuidanceClauses(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.ProficiencyProfile
		want    []string
		notWant []string
	}{
		{
			name:    "all weak",
			profile: domain.ProficiencyProfile{Vocabulary: 0.3, Grammar: 0.3, Pronunciation: 0.3, Fluency: 0.3},
			want:    []string{"struggles with grammar", "limited vocabulary", "pronunciation guidance", "Encourage longer responses", "The student is struggling"},
			notWant: []string{"doing well", "moderate understanding"},
		},
		{
			name:    "strong",
			profile: domain.ProficiencyProfile{Vocabulary: 0.9, Grammar: 0.85, Pronunciation: 0.8, Fluency: 0.95},
			want:    []string{"doing well"},
			notWant: []string{"struggles with grammar", "limited vocabulary", "The student is struggling"},
		},
		{
			name:    "weak fluency alongside high band",
			profile: domain.ProficiencyProfile{Vocabulary: 1, Grammar: 1, Pronunciation: 1, Fluency: 0.5},
			want:    []string{"Encourage longer responses", "doing well"},
		},
		{
			name:    "band boundary at 60",
			profile: domain.ProficiencyProfile{Vocabulary: 0.6, Grammar: 0.6, Pronunciation: 0.6, Fluency: 0.6},
			want:    []string{"moderate understanding"},
			notWant: []string{"The student is struggling", "struggles with grammar"},
		},
		{
			name:    "band boundary at 80",
			profile: domain.ProficiencyProfile{Vocabulary: 0.8, Grammar: 0.8, Pronunciation: 0.8, Fluency: 0.8},
			want:    []string{"doing well"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Compose("weather", domain.LevelIntermediate, tt.profile)
			for _, w := range tt.want {
				assert.True(t, strings.Contains(out, w), "expected %q in prompt", w)
			}
			for _, w := range tt.notWant {
				assert.False(t, strings.Contains(out, w), "did not expect %q in prompt", w)
			}
		})
	}
}

func TestComposeFallsBackToSessionLevel(t *testing.T) {
	out := Compose("sports", domain.LevelAdvanced, domain.ProficiencyProfile{Vocabulary: 0.7, Grammar: 0.7, Pronunciation: 0.7, Fluency: 0.7})
	assert.Contains(t, out, "Overall proficiency level: advanced")
}
