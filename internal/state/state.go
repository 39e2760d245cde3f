// ABOUTME: ConversationState record threaded through every turn of a call
// ABOUTME: Stage enum, history entries, add-only fact maps and deep copy for rollback

package state

import (
	"slices"
	"strings"
	"time"
)

// Stage is the conversation phase label attached to a session.
type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageDiscovery     Stage = "discovery"
	StagePresentation  Stage = "presentation"
	StageQualification Stage = "qualification"
	StageClosing       Stage = "closing"
	StageEnded         Stage = "ended"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageGreeting, StageDiscovery, StagePresentation, StageQualification, StageClosing, StageEnded:
		return true
	}
	return false
}

// Terminal reports whether s is absorbing.
func (s Stage) Terminal() bool {
	return s == StageEnded
}

// Speaker identifies who produced a history entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Message is one history entry.
type Message struct {
	Speaker Speaker   `json:"speaker" msgpack:"speaker"`
	Text    string    `json:"text" msgpack:"text"`
	At      time.Time `json:"at" msgpack:"at"`
}

// ServiceType selects a catalog category for the service-info stage.
type ServiceType string

const (
	ServiceAI         ServiceType = "AI"
	ServiceBlockchain ServiceType = "Blockchain"
	ServiceDevOps     ServiceType = "DevOps"
	ServiceQaaS       ServiceType = "QaaS"
	ServiceBigData    ServiceType = "BigData"
	ServiceGeneral    ServiceType = "General"
)

// ServiceTypes lists every selector in menu order.
var ServiceTypes = []ServiceType{ServiceAI, ServiceBlockchain, ServiceDevOps, ServiceQaaS, ServiceBigData, ServiceGeneral}

// ParseServiceType normalises a raw selector. Unknown or empty values become General.
func ParseServiceType(raw string) ServiceType {
	raw = strings.TrimSpace(raw)
	for _, st := range ServiceTypes {
		if strings.EqualFold(raw, string(st)) {
			return st
		}
	}
	switch strings.ToLower(strings.ReplaceAll(raw, " ", "")) {
	case "ai/ml", "ml", "aiml":
		return ServiceAI
	case "qa", "testing":
		return ServiceQaaS
	}
	return ServiceGeneral
}

// Customer info keys.
const (
	InfoCompany  = "company"
	InfoRole     = "role"
	InfoIndustry = "industry"
)

// Qualification answer keys.
const (
	QualTimeline        = "timeline"
	QualBudget          = "budget"
	QualDecisionProcess = "decision_process"
)

// ConversationState is the per-call record. The session store owns it; a
// turn works on its own copy and hands it back through Save.
type ConversationState struct {
	CallID            string            `json:"call_id" msgpack:"call_id"`
	History           []Message         `json:"history" msgpack:"history"`
	Stage             Stage             `json:"stage" msgpack:"stage"`
	CustomerInfo      map[string]string `json:"customer_info" msgpack:"customer_info"`
	PainPoints        []string          `json:"pain_points" msgpack:"pain_points"`
	DiscussedServices []ServiceType     `json:"discussed_services" msgpack:"discussed_services"`
	InfoGathered      bool              `json:"info_gathered" msgpack:"info_gathered"`
	QualificationData map[string]string `json:"qualification_data" msgpack:"qualification_data"`
	IsQualifiedLead   bool              `json:"is_qualified_lead" msgpack:"is_qualified_lead"`
	ShouldEnd         bool              `json:"should_end" msgpack:"should_end"`
	TurnCount         int               `json:"turn_count" msgpack:"turn_count"`

	// PendingService is the selector most recently chosen by the supervisor.
	PendingService ServiceType `json:"pending_service,omitempty" msgpack:"pending_service,omitempty"`
	// Greeted is set when the greeting was seeded as the first agent entry.
	Greeted bool `json:"greeted" msgpack:"greeted"`

	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// New returns a fresh state for callID in the greeting stage.
func New(callID string, now time.Time) *ConversationState {
	return &ConversationState{
		CallID:            callID,
		Stage:             StageGreeting,
		CustomerInfo:      map[string]string{},
		QualificationData: map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AppendUser appends a user utterance to the history.
func (s *ConversationState) AppendUser(text string) {
	s.History = append(s.History, Message{Speaker: SpeakerUser, Text: text, At: time.Now()})
}

// AppendAgent appends an agent reply to the history.
func (s *ConversationState) AppendAgent(text string) {
	s.History = append(s.History, Message{Speaker: SpeakerAgent, Text: text, At: time.Now()})
}

// LastUserText returns the most recent user utterance, or "".
func (s *ConversationState) LastUserText() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Speaker == SpeakerUser {
			return s.History[i].Text
		}
	}
	return ""
}

// LastAgentText returns the most recent agent reply, or "".
func (s *ConversationState) LastAgentText() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Speaker == SpeakerAgent {
			return s.History[i].Text
		}
	}
	return ""
}

// SetCustomerInfo records a discovered fact. Keys are never removed and an
// empty value never overwrites a known one.
func (s *ConversationState) SetCustomerInfo(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if s.CustomerInfo == nil {
		s.CustomerInfo = map[string]string{}
	}
	s.CustomerInfo[key] = value
}

// AddPainPoint appends p unless an equal entry exists.
func (s *ConversationState) AddPainPoint(p string) {
	p = strings.TrimSpace(p)
	if p == "" {
		return
	}
	for _, existing := range s.PainPoints {
		if strings.EqualFold(existing, p) {
			return
		}
	}
	s.PainPoints = append(s.PainPoints, p)
}

// MarkDiscussed records st as presented. It returns false if it was already there.
func (s *ConversationState) MarkDiscussed(st ServiceType) bool {
	if slices.Contains(s.DiscussedServices, st) {
		return false
	}
	s.DiscussedServices = append(s.DiscussedServices, st)
	return true
}

// SetQualification merges a qualification answer.
func (s *ConversationState) SetQualification(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if s.QualificationData == nil {
		s.QualificationData = map[string]string{}
	}
	s.QualificationData[key] = value
}

// Clone returns a deep copy.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.History = slices.Clone(s.History)
	c.PainPoints = slices.Clone(s.PainPoints)
	c.DiscussedServices = slices.Clone(s.DiscussedServices)
	c.CustomerInfo = cloneMap(s.CustomerInfo)
	c.QualificationData = cloneMap(s.QualificationData)
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
