package assistant

import "strings"

// Rule names reported in chat responses.
const (
	RuleGreeting     = "greeting"
	RuleEmergency    = "emergency"
	RuleUrgent       = "urgent"
	RuleDiagnosis    = "diagnosis_request"
	RulePrescription = "prescription_request"
)

var (
	emergencyTerms = []string{
		"chest pain", "heart attack", "can't breathe", "cannot breathe", "difficulty breathing",
		"severe bleeding", "bleeding heavily", "unconscious", "unresponsive",
		"stroke", "seizure", "convulsion", "suicide", "kill myself",
		"overdose", "poisoning", "choking", "severe burn",
		"broken bone", "severe injury", "car accident",
	}
	urgentTerms = []string{
		"severe pain", "high fever", "vomiting blood", "blood in urine",
		"severe headache", "vision loss", "paralysis", "can't move",
		"severe allergic", "anaphylaxis", "swelling throat",
	}
	diagnosisTerms = []string{
		"do i have", "is this", "diagnose", "what disease",
		"what's wrong with me", "why do i have", "what condition",
	}
	prescriptionTerms = []string{
		"what medicine", "what medication", "prescribe", "what drug",
		"should i take", "how much dosage", "medicine for",
	}
	greetings = []string{"hi", "hello", "hey", "good morning", "good evening", "good afternoon"}
)

const (
	greetingReply = "Hello! I'm the HealthNova assistant. I can help you book appointments, " +
		"understand lab reports, join video consultations and find general health information. " +
		"I cannot diagnose conditions or prescribe medicines. How can I help you today?"

	emergencyReply = "This appears to be a medical emergency. Call 112 or 108 immediately, " +
		"or alert nearby medical staff. Do not wait for an online consultation."

	urgentReply = "Your symptoms need prompt medical attention. Book an urgent video consultation " +
		"from your dashboard or visit the nearest health facility. If things get worse, call 112 or 108."

	diagnosisReply = "I cannot provide a diagnosis. A doctor on HealthNova can review your symptoms, " +
		"order tests and explain what is going on. Would you like to book a consultation?"

	prescriptionReply = "I cannot recommend or prescribe medicines. Only a licensed doctor can do that " +
		"after evaluating you. Please book a consultation and any prescription will appear in your dashboard."
)

// verdict is the outcome of the rule checks run before the model.
type verdict struct {
	rule  string
	reply string
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// isGreeting matches a bare greeting. "his" or "hello, my child has a fever"
// are not greetings.
func isGreeting(lower string) bool {
	lower = strings.Trim(lower, " !.,?")
	for _, g := range greetings {
		if lower == g {
			return true
		}
	}
	return false
}

// urgency classifies a message as an emergency, urgent or neither.
func urgency(lower string) string {
	switch {
	case containsAny(lower, emergencyTerms):
		return RuleEmergency
	case containsAny(lower, urgentTerms):
		return RuleUrgent
	}
	return ""
}

// screenPatient runs the patient-facing rules in order. A nil result means
// the message may go to the model.
func screenPatient(message string) *verdict {
	lower := strings.ToLower(message)
	if isGreeting(lower) {
		return &verdict{rule: RuleGreeting, reply: greetingReply}
	}
	switch urgency(lower) {
	case RuleEmergency:
		return &verdict{rule: RuleEmergency, reply: emergencyReply}
	case RuleUrgent:
		return &verdict{rule: RuleUrgent, reply: urgentReply}
	}
	if containsAny(lower, diagnosisTerms) {
		return &verdict{rule: RuleDiagnosis, reply: diagnosisReply}
	}
	if containsAny(lower, prescriptionTerms) {
		return &verdict{rule: RulePrescription, reply: prescriptionReply}
	}
	return nil
}
