// Package prompt builds the tutor instruction for a lesson turn and parses
// the completion marker out of the model's reply.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/ashureev/lingua-lessons/internal/domain"
)

// remediationThreshold unlocks a remediation clause for any score below it.
const remediationThreshold = 0.6

// Overall-score bands, in percent.
const (
	bandLow  = 60
	bandHigh = 80
)

// Rule texts that callers and tests rely on.
const (
	FollowUpRule   = "End your response with a relevant follow-up question to continue the conversation."
	LengthRule     = "Keep your responses concise (under 150 words)."
	CompletionRule = `Track progress: If the student has had a meaningful exchange (typically 10-20 messages) or has demonstrated sufficient mastery of the topic, include a status flag: "status":"completed" in JSON format at the very end of your message.`
)

// Compose returns the system instruction for a turn. The output depends
// only on its arguments.
func Compose(topic string, level domain.Level, profile domain.ProficiencyProfile) string {
	profileLevel := profile.Level
	if profileLevel == "" {
		profileLevel = level
	}
	overall := int(math.Round(profile.Overall()))

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI English language tutor helping a student with level %s English.\n", level)
	fmt.Fprintf(&b, "The current topic is: %s.\n\n", topic)

	b.WriteString("Student proficiency information:\n")
	fmt.Fprintf(&b, "- Overall proficiency level: %s\n", profileLevel)
	fmt.Fprintf(&b, "- Vocabulary accuracy: %d%%\n", percent(profile.Vocabulary))
	fmt.Fprintf(&b, "- Grammar accuracy: %d%%\n", percent(profile.Grammar))
	fmt.Fprintf(&b, "- Pronunciation score: %d%%\n", percent(profile.Pronunciation))
	fmt.Fprintf(&b, "- Fluency score: %d%%\n", percent(profile.Fluency))
	fmt.Fprintf(&b, "- Overall accuracy from past lessons: %d%%\n\n", overall)

	b.WriteString("Adapt your teaching approach based on this information:\n")
	for _, clause := range guidance(profile, overall) {
		b.WriteString("- ")
		b.WriteString(clause)
		b.WriteByte('\n')
	}

	b.WriteString("\nYour role is to:\n")
	rules := []string{
		"Respond to the student in clear, natural English.",
		"Provide corrections for any language mistakes in a friendly, encouraging way.",
		fmt.Sprintf("Use vocabulary and grammar appropriate for their level (%s).", level),
		FollowUpRule,
		LengthRule,
		CompletionRule,
	}
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	b.WriteString("\nAvoid:\n")
	b.WriteString("- Lengthy explanations of grammar rules\n")
	b.WriteString("- Overwhelming the student with vocabulary beyond their level\n")
	b.WriteString("- Using idioms or cultural references that might be confusing\n\n")
	b.WriteString("Format your response in a conversational style. Do not label your corrections or follow-up questions explicitly.")

	return b.String()
}

// guidance returns the adaptive clauses for a profile. Remediation clauses
// and the difficulty band are independent and may all apply. The band uses
// the rounded percentage shown to the model.
func guidance(p domain.ProficiencyProfile, overall int) []string {
	var clauses []string
	if p.Grammar < remediationThreshold {
		clauses = append(clauses, "The student struggles with grammar. Provide gentle corrections for grammar mistakes.")
	}
	if p.Vocabulary < remediationThreshold {
		clauses = append(clauses, "The student has a limited vocabulary. Use simpler words and explain new terms.")
	}
	if p.Pronunciation < remediationThreshold {
		clauses = append(clauses, "The student needs help with pronunciation. Occasionally provide pronunciation guidance.")
	}
	if p.Fluency < remediationThreshold {
		clauses = append(clauses, "The student is working on fluency. Encourage longer responses.")
	}

	switch {
	case overall < bandLow:
		clauses = append(clauses, "The student is struggling. Simplify your language and provide more support.")
	case overall < bandHigh:
		clauses = append(clauses, "The student has moderate understanding. Balance corrections with encouragement.")
	default:
		clauses = append(clauses, "The student is doing well. You can use more challenging vocabulary and complex sentence structures.")
	}
	return clauses
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}
