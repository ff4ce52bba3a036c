package domain

import "time"

// ProficiencySnapshot is one analytics record of a student's scores.
// All scores are fractions in [0,1].
type ProficiencySnapshot struct {
	UserID             string    `json:"user_id"`
	VocabularyAccuracy float64   `json:"vocabulary_accuracy"`
	GrammarAccuracy    float64   `json:"grammar_accuracy"`
	PronunciationScore float64   `json:"pronunciation_score"`
	FluencyScore       float64   `json:"fluency_score"`
	CreatedAt          time.Time `json:"created_at"`
}

// DefaultScore is used for every score when a student has no snapshots.
const DefaultScore = 0.7

// ProficiencyProfile is the per-turn average of recent snapshots.
type ProficiencyProfile struct {
	Level         Level
	Vocabulary    float64
	Grammar       float64
	Pronunciation float64
	Fluency       float64
}

// DefaultProfile returns the profile used when no snapshots exist.
func DefaultProfile(level Level) ProficiencyProfile {
	return ProficiencyProfile{
		Level:         level,
		Vocabulary:    DefaultScore,
		Grammar:       DefaultScore,
		Pronunciation: DefaultScore,
		Fluency:       DefaultScore,
	}
}

// Overall returns the mean of all four scores as a percentage in [0,100].
func (p ProficiencyProfile) Overall() float64 {
	return (p.Vocabulary + p.Grammar + p.Pronunciation + p.Fluency) / 4 * 100
}
