package model

// CheckContext is the ephemeral context for a single intervention check or
// regret prediction. It is supplied by the caller (typically from the
// cognitive state monitor) and never persisted. Missing fields default to
// their zero values, which the engines treat permissively: a zero stress
// level never triggers the stress rule, a nil MinutesSinceMeeting never
// triggers the post-meeting rule.
type CheckContext struct {
	StressLevel     float64 `json:"stress_level"`
	EnergyLevel     float64 `json:"energy_level"`
	DecisionQuality float64 `json:"decision_quality"`
	// TimeThinking is how long the user has deliberated, in seconds.
	TimeThinking       float64 `json:"time_thinking"`
	EmotionalState     string  `json:"emotional_state"`
	CurrentCommitments int     `json:"current_commitments"`
	DecisionType       string  `json:"decision_type"`
	// MinutesSinceMeeting is nil when no meeting time is known.
	MinutesSinceMeeting *float64 `json:"minutes_since_meeting,omitempty"`
}

// volatileStates are the emotional states under which decisions are
// historically regretted most.
var volatileStates = map[string]bool{
	"angry":      true,
	"frustrated": true,
	"sad":        true,
}

// IsVolatileEmotion reports whether the context's emotional state is one
// the engines treat as decision-impairing.
func (c CheckContext) IsVolatileEmotion() bool {
	return volatileStates[c.EmotionalState]
}
