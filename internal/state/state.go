// Package state tracks the user's live cognitive state from a stream of
// activity events (typing, reading, switching windows) and scores energy,
// stress, flow, and decision quality.
//
// The monitor is the source of the check context used by the regret and
// intervention engines: its scores feed directly into their stress and
// quality factors.
package state

import (
	"sync"
	"time"

	"github.com/kagami-ai/kagami/internal/model"
)

// Activity states.
const (
	StateIdle       = "idle"
	StateWorking    = "working"
	StateFlow       = "flow"
	StateDistracted = "distracted"
	StateFocusing   = "focusing"
)

// bufferSize bounds the retained activity history.
const bufferSize = 100

// recentWindow is how many trailing activities the state detector looks at.
const recentWindow = 20

// focusActivities are the activity types that count toward flow.
var focusActivities = map[string]bool{
	"typing":  true,
	"reading": true,
	"coding":  true,
}

// Activity is one logged activity event.
type Activity struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Duration  int       `json:"duration"`
}

// FocusSession is one completed focus session.
type FocusSession struct {
	Start    time.Time `json:"start"`
	Duration int       `json:"duration"` // minutes
	Quality  float64   `json:"quality"`
}

// Snapshot is the current cognitive state.
type Snapshot struct {
	State           string  `json:"state"`
	EnergyLevel     float64 `json:"energy_level"`
	StressLevel     float64 `json:"stress_level"`
	DecisionQuality float64 `json:"decision_quality"`
	FlowScore       float64 `json:"flow_state_score"`
	TimeSinceBreak  int     `json:"time_since_break"` // minutes
	Recommendation  string  `json:"recommendation"`
}

// DailyStats summarizes today's focus sessions.
type DailyStats struct {
	TotalFocusTime int     `json:"total_focus_time"` // minutes
	FocusSessions  int     `json:"focus_sessions"`
	AvgQuality     float64 `json:"avg_quality"`
	CurrentEnergy  float64 `json:"current_energy"`
	CurrentStress  float64 `json:"current_stress"`
}

// Projection is the predicted state an hour out.
type Projection struct {
	PredictedEnergy float64 `json:"predicted_energy"`
	PredictedStress float64 `json:"predicted_stress"`
	Recommendation  string  `json:"recommendation"`
}

// Monitor tracks cognitive state. Safe for concurrent use.
type Monitor struct {
	mu            sync.Mutex
	buffer        []Activity
	focusSessions []FocusSession
	state         string
	energy        float64
	stress        float64
	quality       float64
	flow          float64
	lastBreak     time.Time
	sessionStart  *time.Time
	now           func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a monitor starting rested and idle.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		state:   StateIdle,
		energy:  100,
		quality: 100,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastBreak = m.now()
	return m
}

// LogActivity records one activity event and re-scores the state.
func (m *Monitor) LogActivity(activityType string, duration int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = append(m.buffer, Activity{
		Type:      activityType,
		Timestamp: m.now(),
		Duration:  duration,
	})
	if len(m.buffer) > bufferSize {
		m.buffer = m.buffer[len(m.buffer)-bufferSize:]
	}
	m.updateLocked()
}

// updateLocked re-scores state from the trailing activity window.
// Caller must hold the mutex.
func (m *Monitor) updateLocked() {
	if len(m.buffer) < 10 {
		return
	}

	recent := m.buffer
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	focus, switches := 0, 0
	for _, a := range recent {
		switch {
		case focusActivities[a.Type]:
			focus++
		case a.Type == "switch":
			switches++
		}
	}

	switch {
	case focus > 15 && switches < 2:
		m.state = StateFlow
		m.flow = clamp(m.flow+5, 0, 100)
	case switches > 8:
		m.state = StateDistracted
		m.flow = clamp(m.flow-10, 0, 100)
		m.stress = clamp(m.stress+5, 0, 100)
	default:
		m.state = StateWorking
		m.flow = clamp(m.flow-2, 0, 100)
	}

	// Energy drains once the last break is more than 90 minutes ago.
	if m.now().Sub(m.lastBreak) > 90*time.Minute {
		m.energy = clamp(m.energy-1, 20, 100)
		m.quality = clamp(m.quality-1, 30, 100)
	}

	switch m.state {
	case StateFlow:
		m.quality = clamp(m.quality+2, 0, 100)
	case StateDistracted:
		m.quality = clamp(m.quality-3, 30, 100)
	}
}

// Current returns the current cognitive state.
func (m *Monitor) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		State:           m.state,
		EnergyLevel:     m.energy,
		StressLevel:     m.stress,
		DecisionQuality: m.quality,
		FlowScore:       m.flow,
		TimeSinceBreak:  int(m.now().Sub(m.lastBreak) / time.Minute),
		Recommendation:  m.recommendationLocked(),
	}
}

// CheckContext builds the check context the regret and intervention
// engines consume. Callers layer request-specific fields (thinking time,
// commitments, decision type) on top.
func (m *Monitor) CheckContext() model.CheckContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	emotion := "neutral"
	if m.stress > 70 {
		emotion = "frustrated"
	}
	return model.CheckContext{
		StressLevel:     m.stress,
		EnergyLevel:     m.energy,
		DecisionQuality: m.quality,
		EmotionalState:  emotion,
	}
}

// recommendationLocked picks the most pressing advice for the current
// scores. Caller must hold the mutex.
func (m *Monitor) recommendationLocked() string {
	switch {
	case m.energy < 40:
		return "Energy low. Take a break."
	case m.stress > 70:
		return "Stress high. Step away for 5 minutes."
	case m.flow > 70:
		return "Flow state! Keep going."
	case m.quality < 50:
		return "Decision quality low. Defer important choices."
	case m.state == StateDistracted:
		return "Too many switches. Focus on one thing."
	default:
		return "Good state. Keep working."
	}
}

// TakeBreak records a break, restoring energy and easing stress.
func (m *Monitor) TakeBreak() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastBreak = m.now()
	m.energy = clamp(m.energy+20, 0, 100)
	m.stress = clamp(m.stress-15, 0, 100)
	m.quality = clamp(m.quality+10, 0, 100)
}

// StartFocusSession marks the start of a focus session.
func (m *Monitor) StartFocusSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	m.sessionStart = &start
	m.state = StateFocusing
}

// EndFocusSession closes the current focus session and returns its
// duration in minutes. Without an open session it returns 0.
func (m *Monitor) EndFocusSession() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionStart == nil {
		return 0
	}
	duration := int(m.now().Sub(*m.sessionStart) / time.Minute)
	m.focusSessions = append(m.focusSessions, FocusSession{
		Start:    *m.sessionStart,
		Duration: duration,
		Quality:  m.flow,
	})
	m.sessionStart = nil
	return duration
}

// DailyStats summarizes today's focus sessions.
func (m *Monitor) DailyStats() DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.now()
	y, mo, d := today.Date()

	var total int
	var quality float64
	count := 0
	for _, s := range m.focusSessions {
		sy, smo, sd := s.Start.Date()
		if sy == y && smo == mo && sd == d {
			total += s.Duration
			quality += s.Quality
			count++
		}
	}

	avg := 0.0
	if count > 0 {
		avg = quality / float64(count)
	}
	return DailyStats{
		TotalFocusTime: total,
		FocusSessions:  count,
		AvgQuality:     avg,
		CurrentEnergy:  m.energy,
		CurrentStress:  m.stress,
	}
}

// PredictNextHour projects energy and stress an hour out on the current
// trajectory, with an afternoon-slump adjustment.
func (m *Monitor) PredictNextHour() Projection {
	m.mu.Lock()
	defer m.mu.Unlock()

	energy := clamp(m.energy-10, 20, 100)
	stress := clamp(m.stress+5, 0, 100)

	if h := m.now().Hour(); h >= 14 && h <= 16 {
		energy -= 15
	}

	rec := "Good time for challenging tasks"
	if energy < 50 {
		rec = "Schedule important work before energy drops"
	}
	return Projection{
		PredictedEnergy: energy,
		PredictedStress: stress,
		Recommendation:  rec,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
