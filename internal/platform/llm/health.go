package llm

import (
	"context"
	"fmt"
	"strings"
)

// Disclaimer is appended to every guidance answer shown to a patient.
const Disclaimer = "This is general health information only, not a diagnosis. Please consult a doctor for medical advice."

// EmergencyMessage is returned instead of model output when a question
// describes an emergency.
const EmergencyMessage = "This sounds like it may be an emergency. Call 108 for an ambulance or go to the nearest hospital immediately."

const guidancePrompt = `You are a health awareness assistant for HealthNova, a rural telemedicine service.

Rules:
1. Do not diagnose any condition.
2. Do not prescribe medicines or dosages.
3. Do not suggest specific treatments.
4. Always tell the user to consult a real doctor.
5. Use simple, kind language.

User's concern: %s

Provide general health awareness in 2-3 short paragraphs.`

const summaryPrompt = `Summarize these patient symptoms in 1-2 clear sentences.
Do not diagnose. Only describe what the patient is experiencing.

Symptoms: %s

Summary:`

var emergencyKeywords = []string{
	"chest pain", "heart attack", "stroke", "unconscious", "heavy bleeding",
	"suicide", "overdose", "poisoning", "can't breathe", "cannot breathe",
	"difficulty breathing",
}

// IsEmergency reports whether text mentions an emergency keyword.
func IsEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range emergencyKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Answer is a guidance response.
type Answer struct {
	Text        string `json:"response"`
	Disclaimer  string `json:"disclaimer"`
	IsEmergency bool   `json:"is_emergency"`
}

// Guidance answers a patient's general health question. Emergencies are
// answered with EmergencyMessage without calling the model.
func (c *Client) Guidance(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if IsEmergency(question) {
		return Answer{Text: EmergencyMessage, Disclaimer: Disclaimer, IsEmergency: true}, nil
	}
	text, err := c.Generate(ctx, fmt.Sprintf(guidancePrompt, question), GenerationConfig{
		Temperature:     0.7,
		MaxOutputTokens: 500,
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Disclaimer: Disclaimer}, nil
}

// Summarize condenses a symptom description for the doctor's triage view.
func (c *Client) Summarize(ctx context.Context, symptoms string) (string, error) {
	return c.Generate(ctx, fmt.Sprintf(summaryPrompt, strings.TrimSpace(symptoms)), GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 100,
	})
}
