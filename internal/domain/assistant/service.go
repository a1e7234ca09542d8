// Package assistant answers health questions through the language model:
// one-shot guidance and chat for patients, clinical support for doctors.
package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/visit"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/llm"
)

const (
	minQuestionLen  = 10
	maxQuestionLen  = 1000
	maxMessageLen   = 2000
	maxPatientData  = 30
	maxDataValueLen = 500
	recentVisits    = 3
	guidanceTimeout = 20 * time.Second
	chatTimeout     = 30 * time.Second
)

// Response kinds.
const (
	KindRuleBased   = "rule_based"
	KindAIGenerated = "ai_generated"
	KindFallback    = "fallback"
)

const (
	ClinicalDisclaimer = "AI-generated clinical support. Verify against the patient's examination; " +
		"diagnosis and treatment decisions rest with the treating doctor."

	patientFallback = "I'm having technical difficulties right now. You can still book an appointment " +
		"from your dashboard or call our support line."
	doctorFallback = "Clinical assistant temporarily unavailable. Please rely on your clinical judgment " +
		"and hospital protocols."
)

// Model is the language model surface used here. llm.Client satisfies it.
type Model interface {
	Guidance(ctx context.Context, question string) (llm.Answer, error)
	PatientChat(ctx context.Context, message string) (string, error)
	ClinicalSupport(ctx context.Context, message string, patientContext []string) (string, error)
}

// PatientRecords loads a patient's history for a doctor who has treated
// them. visit.Service satisfies it.
type PatientRecords interface {
	DoctorTimeline(ctx context.Context, doctorID, patientID uuid.UUID) (*visit.Timeline, error)
}

type GuidanceRequest struct {
	Question string `json:"question"`
}

type GuidanceResponse struct {
	Guidance    string `json:"guidance"`
	Disclaimer  string `json:"disclaimer"`
	IsEmergency bool   `json:"is_emergency"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type DoctorChatRequest struct {
	Message     string            `json:"message"`
	PatientID   *uuid.UUID        `json:"patient_id,omitempty"`
	PatientData map[string]string `json:"patient_data,omitempty"`
}

type ChatResponse struct {
	Response     string `json:"response"`
	Disclaimer   string `json:"disclaimer"`
	Kind         string `json:"response_type"`
	Rule         string `json:"rule_triggered,omitempty"`
	IsEmergency  bool   `json:"is_emergency"`
	PatientAware bool   `json:"patient_data_provided,omitempty"`
}

type Service struct {
	model    Model
	patients PatientRecords
	logger   zerolog.Logger
}

// NewService builds the assistant. patients may be nil, in which case
// doctor chats that name a patient are rejected.
func NewService(model Model, patients PatientRecords, logger zerolog.Logger) *Service {
	return &Service{model: model, patients: patients, logger: logger.With().Str("component", "assistant").Logger()}
}

func (s *Service) Ask(ctx context.Context, req GuidanceRequest) (*GuidanceResponse, error) {
	q := strings.TrimSpace(req.Question)
	if n := len([]rune(q)); n < minQuestionLen || n > maxQuestionLen {
		return nil, apperr.Validation("question must be between %d and %d characters", minQuestionLen, maxQuestionLen)
	}

	ctx, cancel := context.WithTimeout(ctx, guidanceTimeout)
	defer cancel()
	ans, err := s.model.Guidance(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("guidance request failed")
		return nil, apperr.Internal(fmt.Errorf("guidance: %w", err))
	}
	if ans.IsEmergency {
		s.logger.Warn().Msg("emergency keywords in guidance question")
	}
	return &GuidanceResponse{
		Guidance:    ans.Text,
		Disclaimer:  ans.Disclaimer,
		IsEmergency: ans.IsEmergency,
	}, nil
}

func chatMessage(raw string) (string, error) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", apperr.Validation("message is required")
	}
	if len([]rune(msg)) > maxMessageLen {
		return "", apperr.Validation("message must be at most %d characters", maxMessageLen)
	}
	return msg, nil
}

// PatientChat answers a patient's message. Greetings, emergencies and
// requests for a diagnosis or a prescription get a fixed reply and never
// reach the model. The model sees no record data.
func (s *Service) PatientChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msg, err := chatMessage(req.Message)
	if err != nil {
		return nil, err
	}
	if v := screenPatient(msg); v != nil {
		if v.rule == RuleEmergency || v.rule == RuleUrgent {
			s.logger.Warn().Str("rule", v.rule).Msg("patient chat escalated")
		}
		return &ChatResponse{
			Response:    v.reply,
			Disclaimer:  llm.Disclaimer,
			Kind:        KindRuleBased,
			Rule:        v.rule,
			IsEmergency: v.rule == RuleEmergency || v.rule == RuleUrgent,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()
	text, err := s.model.PatientChat(ctx, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("patient chat failed")
		return &ChatResponse{Response: patientFallback, Disclaimer: llm.Disclaimer, Kind: KindFallback}, nil
	}
	return &ChatResponse{Response: text, Disclaimer: llm.Disclaimer, Kind: KindAIGenerated}, nil
}

// DoctorChat gives clinical support. When PatientID is set the doctor must
// have treated that patient and a summary of their record is sent along
// with any PatientData the doctor typed in.
func (s *Service) DoctorChat(ctx context.Context, doctorID uuid.UUID, req DoctorChatRequest) (*ChatResponse, error) {
	msg, err := chatMessage(req.Message)
	if err != nil {
		return nil, err
	}
	patientContext, err := s.patientContext(ctx, doctorID, req)
	if err != nil {
		return nil, err
	}
	flag := urgency(strings.ToLower(msg))

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()
	resp := &ChatResponse{
		Disclaimer:   ClinicalDisclaimer,
		Rule:         flag,
		IsEmergency:  flag != "",
		PatientAware: len(patientContext) > 0,
	}
	text, err := s.model.ClinicalSupport(ctx, msg, patientContext)
	if err != nil {
		s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("clinical chat failed")
		resp.Response, resp.Kind = doctorFallback, KindFallback
		return resp, nil
	}
	resp.Response, resp.Kind = text, KindAIGenerated
	return resp, nil
}

func (s *Service) patientContext(ctx context.Context, doctorID uuid.UUID, req DoctorChatRequest) ([]string, error) {
	if len(req.PatientData) > maxPatientData {
		return nil, apperr.Validation("patient_data may hold at most %d fields", maxPatientData)
	}
	var lines []string
	if req.PatientID != nil {
		if s.patients == nil {
			return nil, apperr.Validation("patient records are not available")
		}
		tl, err := s.patients.DoctorTimeline(ctx, doctorID, *req.PatientID)
		if err != nil {
			return nil, err
		}
		lines = timelineLines(tl)
	}

	keys := make([]string, 0, len(req.PatientData))
	for k := range req.PatientData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(req.PatientData[k])
		if v == "" {
			continue
		}
		if len([]rune(v)) > maxDataValueLen {
			return nil, apperr.Validation("patient_data.%s is too long", k)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, v))
	}
	return lines, nil
}

// timelineLines flattens the clinically useful parts of a record. Contact
// and address fields are left out.
func timelineLines(tl *visit.Timeline) []string {
	var lines []string
	add := func(label string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			lines = append(lines, label+": "+strings.TrimSpace(*v))
		}
	}
	if p := tl.Patient; p != nil {
		if p.Age != nil {
			lines = append(lines, fmt.Sprintf("Age: %d", *p.Age))
		}
		if pr := p.Profile; pr != nil {
			add("Gender", pr.Gender)
			add("Blood group", pr.BloodGroup)
			add("Allergies", pr.Allergies)
			add("Chronic conditions", pr.ChronicConditions)
			add("Current medications", pr.CurrentMedications)
			add("Medical history", pr.MedicalHistory)
		}
	}
	if tl.Summary != nil {
		lines = append(lines, fmt.Sprintf("Total visits: %d", tl.Summary.TotalVisits))
	}
	for i, v := range tl.Visits {
		if i == recentVisits {
			break
		}
		line := fmt.Sprintf("Visit %s (%s, %s): %s", v.CreatedAt.Format("2006-01-02"), v.Status, v.Severity, v.Symptoms)
		if v.Diagnosis != nil && *v.Diagnosis != "" {
			line += "; diagnosis: " + *v.Diagnosis
		}
		lines = append(lines, line)
	}
	return lines
}
