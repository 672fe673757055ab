package answer

// Canned replies. Each is returned as a successful envelope.
const (
	GuidanceText = "I'm here to help with university information! Please ask me about specific " +
		"universities, programs, tuition fees, or visa requirements. You can also ask questions like " +
		"'What programs does MIT offer?' or 'What are the admission requirements for Computer Science?'"

	ApologyText = "I encountered an error processing your query. Please try asking about specific " +
		"universities, programs, or visa requirements."

	OuterFailureText = "I'm experiencing technical difficulties. Please try again or ask a different question."

	GenerationFallbackText = "I'm here to help with university and visa information. Please ask me about " +
		"specific universities, programs, admission requirements, or visa processes."
)

// GuidanceFollowUps accompany GuidanceText.
func GuidanceFollowUps() []string {
	return []string{
		"What programs does MIT offer?",
		"What are the tuition fees for Computer Science?",
		"Tell me about visa requirements",
	}
}

// ApologyFollowUps accompany ApologyText and OuterFailureText.
func ApologyFollowUps() []string {
	return []string{
		"What programs are available?",
		"Tell me about admission requirements",
		"How do I apply for a student visa?",
	}
}

// FollowUpPool is the candidate set follow-up suggestions are sampled from.
func FollowUpPool() []string {
	return []string{
		"What are the admission requirements?",
		"Tell me about tuition fees",
		"What programs are available?",
		"How do I apply for a student visa?",
		"What documents do I need for F-1 visa?",
		"Which universities offer scholarships?",
	}
}

// Guidance is the reply used when no semantic index is available.
func Guidance() Envelope {
	return Envelope{Success: true, Text: GuidanceText, FollowUps: GuidanceFollowUps()}
}

// Apology is the reply used when answering failed part way.
func Apology() Envelope {
	return Envelope{Success: true, Text: ApologyText, FollowUps: ApologyFollowUps()}
}

// OuterFailure is the only envelope with Success false.
func OuterFailure(detail string) Envelope {
	return Envelope{Success: false, Text: OuterFailureText, FollowUps: ApologyFollowUps(), Error: detail}
}
