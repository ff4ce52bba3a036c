package proficiency

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshots []domain.ProficiencySnapshot
	profile   *domain.UserProfile
	err       error
	gotLimit  int
}

func (f *fakeSource) RecentSnapshots(_ context.Context, _ string, limit int) ([]domain.ProficiencySnapshot, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.snapshots) > limit {
		return f.snapshots[:limit], nil
	}
	return f.snapshots, nil
}

func (f *fakeSource) GetProfile(_ context.Context, _ string) (*domain.UserProfile, error) {
	return f.profile, nil
}

func snap(v, g, p, fl float64) domain.ProficiencySnapshot {
	return domain.ProficiencySnapshot{VocabularyAccuracy: v, GrammarAccuracy: g, PronunciationScore: p, FluencyScore: fl}
}

func TestAggregateDefaultsWithoutSnapshots(t *testing.T) {
	src := &fakeSource{}
	profile, err := NewAggregator(src).Aggregate(context.Background(), "user-1", domain.LevelBeginner)
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultProfile(domain.LevelBeginner), profile)
	assert.Equal(t, Window, src.gotLimit)
}

func TestAggregateMeanOverAvailableWindow(t *testing.T) {
	src := &fakeSource{snapshots: []domain.ProficiencySnapshot{
		snap(0.4, 0.5, 0.6, 0.7),
		snap(0.6, 0.7, 0.8, 0.9),
	}}
	profile, err := NewAggregator(src).Aggregate(context.Background(), "user-1", domain.LevelIntermediate)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, profile.Vocabulary, 1e-9)
	assert.InDelta(t, 0.6, profile.Grammar, 1e-9)
	assert.InDelta(t, 0.7, profile.Pronunciation, 1e-9)
	assert.InDelta(t, 0.8, profile.Fluency, 1e-9)
	assert.Equal(t, domain.LevelIntermediate, profile.Level)
}

func TestAggregatePrefersStoredLevel(t *testing.T) {
	src := &fakeSource{profile: &domain.UserProfile{UserID: "user-1", ProficiencyLevel: domain.LevelAdvanced}}
	profile, err := NewAggregator(src).Aggregate(context.Background(), "user-1", domain.LevelBeginner)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelAdvanced, profile.Level)
}

func TestAggregatePropagatesErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	_, err := NewAggregator(src).Aggregate(context.Background(), "user-1", domain.LevelBeginner)
	assert.Error(t, err)
}

func TestReduceStaysInRange(t *testing.T) {
	inputs := []domain.ProficiencySnapshot{
		snap(1.4, -0.2, math.NaN(), 0.3),
		snap(0, 1, 0.5, 1),
		snap(0.9, 0.1, 0.2, 0.3),
		snap(1, 1, 1, 1),
		snap(0, 0, 0, 0),
		snap(0.5, 0.5, 0.5, 0.5),
	}

	for n := 0; n <= len(inputs); n++ {
		p := Reduce(inputs[:n], domain.LevelBeginner)
		for _, v := range []float64{p.Vocabulary, p.Grammar, p.Pronunciation, p.Fluency} {
			if v < 0 || v > 1 {
				t.Errorf("window %d produced out-of-range score %v", n, v)
			}
		}
		if n == 0 && p != domain.DefaultProfile(domain.LevelBeginner) {
			t.Errorf("empty window should return the default profile, got %+v", p)
		}
	}
}
