package speech

import (
	"errors"
	"testing"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayMerge(t *testing.T) {
	o := NewOverlay()
	persisted := []domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "hi"},
		{ID: "m2", Role: domain.RoleAI, Content: "hello!"},
	}

	first := o.Add("how are you")
	second := o.Add("and you?")

	view := o.Merge(persisted)
	require.Len(t, view, 4)
	assert.Equal(t, "m2", view[1].ID)
	assert.Equal(t, first, view[2].ID)
	assert.Equal(t, domain.RoleUser, view[3].Role)
	assert.Len(t, persisted, 2, "persisted list is not modified")

	require.True(t, o.Confirm(first))
	require.True(t, o.Fail(second, errors.New("generation failed")))
	assert.False(t, o.Confirm(second), "settled entries cannot change")

	persisted = append(persisted,
		domain.Message{ID: "m3", Role: domain.RoleUser, Content: "how are you"},
		domain.Message{ID: "m4", Role: domain.RoleAI, Content: "great"},
	)
	view = o.Merge(persisted)
	assert.Equal(t, persisted, view)
	assert.Empty(t, o.Pending())
}

func TestVoiceOptionsNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   VoiceOptions
		want VoiceOptions
	}{
		{"defaults", VoiceOptions{}, VoiceOptions{Rate: 1, Pitch: 1, Volume: 1}},
		{"clamped high", VoiceOptions{Rate: 50, Pitch: 3, Volume: 2}, VoiceOptions{Rate: 10, Pitch: 2, Volume: 1}},
		{"clamped low", VoiceOptions{Rate: 0.01, Pitch: -1, Volume: -1}, VoiceOptions{Rate: 0.1, Pitch: 0, Volume: 0}},
		{"kept", VoiceOptions{Voice: "nova", Rate: 1.5, Pitch: 0.5, Volume: 0.3}, VoiceOptions{Voice: "nova", Rate: 1.5, Pitch: 0.5, Volume: 0.3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalized())
		})
	}
}
