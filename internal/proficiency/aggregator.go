// Package proficiency reduces recent performance snapshots into the
// profile used to adapt each lesson turn.
package proficiency

import (
	"context"
	"fmt"

	"github.com/ashureev/lingua-lessons/internal/domain"
)

// Window is how many recent snapshots feed a profile.
const Window = 5

// Source is the subset of the store the aggregator reads.
type Source interface {
	RecentSnapshots(ctx context.Context, userID string, limit int) ([]domain.ProficiencySnapshot, error)
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// Aggregator computes proficiency profiles from stored snapshots.
type Aggregator struct {
	src Source
}

// NewAggregator creates an Aggregator reading from src.
func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Aggregate returns the mean of the user's last Window snapshots. With no
// snapshots every score defaults to domain.DefaultScore. The level comes
// from the stored profile when set, otherwise sessionLevel.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, sessionLevel domain.Level) (domain.ProficiencyProfile, error) {
	level := sessionLevel
	profile, err := a.src.GetProfile(ctx, userID)
	if err != nil {
		return domain.ProficiencyProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.HasLevel() {
		level = profile.ProficiencyLevel
	}

	snapshots, err := a.src.RecentSnapshots(ctx, userID, Window)
	if err != nil {
		return domain.ProficiencyProfile{}, fmt.Errorf("load snapshots: %w", err)
	}
	return Reduce(snapshots, level), nil
}

// Reduce averages up to Window snapshots. Extra entries are ignored, so
// callers must pass them newest first.
func Reduce(snapshots []domain.ProficiencySnapshot, level domain.Level) domain.ProficiencyProfile {
	if len(snapshots) > Window {
		snapshots = snapshots[:Window]
	}
	if len(snapshots) == 0 {
		return domain.DefaultProfile(level)
	}

	var p domain.ProficiencyProfile
	for _, s := range snapshots {
		p.Vocabulary += clamp(s.VocabularyAccuracy)
		p.Grammar += clamp(s.GrammarAccuracy)
		p.Pronunciation += clamp(s.PronunciationScore)
		p.Fluency += clamp(s.FluencyScore)
	}

	n := float64(len(snapshots))
	p.Vocabulary /= n
	p.Grammar /= n
	p.Pronunciation /= n
	p.Fluency /= n
	p.Level = level
	return p
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
