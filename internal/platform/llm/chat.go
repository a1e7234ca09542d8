package llm

import (
	"context"
	"fmt"
	"strings"
)

const patientChatPrompt = `You are the HealthNova assistant for patients of a rural telemedicine service.
Give general health education and help with using the platform: booking
appointments, video consultations, lab reports and payments.

Never diagnose, never name medicines or dosages, and never claim access to
the patient's records. Keep answers short, simple and kind, and suggest
booking a consultation when the question needs a doctor.

Patient: %s

Answer:`

const clinicalPrompt = `You are a clinical support assistant for a licensed doctor on HealthNova.
Summarize the data provided, point out relevant considerations and possible
differentials, and suggest investigations worth ordering. Use concise
medical terminology. Do not make a final diagnosis and do not prescribe on
your own; the treating doctor decides.

Patient data:
%s

Doctor's question: %s

Response:`

// PatientChat answers a free-form patient message without any record data.
func (c *Client) PatientChat(ctx context.Context, message string) (string, error) {
	return c.Generate(ctx, fmt.Sprintf(patientChatPrompt, strings.TrimSpace(message)), GenerationConfig{
		Temperature:     0.6,
		MaxOutputTokens: 400,
	})
}

// ClinicalSupport answers a doctor's question. patientContext holds one
// "label: value" line per fact and may be empty.
func (c *Client) ClinicalSupport(ctx context.Context, message string, patientContext []string) (string, error) {
	data := "None provided."
	if len(patientContext) > 0 {
		data = "- " + strings.Join(patientContext, "\n- ")
	}
	return c.Generate(ctx, fmt.Sprintf(clinicalPrompt, data, strings.TrimSpace(message)), GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 800,
	})
}
