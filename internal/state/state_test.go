// ABOUTME: Tests for the conversation state record
// ABOUTME: Covers add-only collections, deep copy isolation and the qualification predicate

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New("CA1", now)

	assert.Equal(t, "CA1", s.CallID)
	assert.Equal(t, StageGreeting, s.Stage)
	assert.Empty(t, s.History)
	assert.NotNil(t, s.CustomerInfo)
	assert.NotNil(t, s.QualificationData)
	assert.Equal(t, now, s.CreatedAt)
	assert.False(t, s.InfoGathered)
	assert.False(t, s.ShouldEnd)
}

func TestStage(t *testing.T) {
	assert.True(t, StageEnded.Terminal())
	assert.False(t, StageClosing.Terminal())
	assert.True(t, StagePresentation.Valid())
	assert.False(t, Stage("lobby").Valid())
}

func TestHistoryHelpers(t *testing.T) {
	s := New("CA1", time.Now())
	assert.Equal(t, "", s.LastUserText())

	s.AppendAgent("hello")
	s.AppendUser("hi")
	s.AppendAgent("how can I help")
	s.AppendUser("tell me about AI")

	require.Len(t, s.History, 4)
	assert.Equal(t, SpeakerUser, s.History[1].Speaker)
	assert.Equal(t, "tell me about AI", s.LastUserText())
	assert.Equal(t, "how can I help", s.LastAgentText())
}

func TestSetCustomerInfo_AddOnly(t *testing.T) {
	s := New("CA1", time.Now())
	s.SetCustomerInfo(InfoCompany, "Acme")
	s.SetCustomerInfo(InfoCompany, "  ")
	s.SetCustomerInfo(InfoRole, "CTO")

	assert.Equal(t, map[string]string{InfoCompany: "Acme", InfoRole: "CTO"}, s.CustomerInfo)
}

func TestAddPainPoint_Dedupes(t *testing.T) {
	s := New("CA1", time.Now())
	s.AddPainPoint("slow releases")
	s.AddPainPoint("Slow Releases")
	s.AddPainPoint("")
	s.AddPainPoint("flaky tests")

	assert.Equal(t, []string{"slow releases", "flaky tests"}, s.PainPoints)
}

func TestMarkDiscussed_NoDuplicates(t *testing.T) {
	s := New("CA1", time.Now())
	assert.True(t, s.MarkDiscussed(ServiceAI))
	assert.False(t, s.MarkDiscussed(ServiceAI))
	assert.True(t, s.MarkDiscussed(ServiceGeneral))

	assert.Equal(t, []ServiceType{ServiceAI, ServiceGeneral}, s.DiscussedServices)
}

func TestClone_IsDeep(t *testing.T) {
	s := New("CA1", time.Now())
	s.AppendUser("hi")
	s.SetCustomerInfo(InfoIndustry, "retail")
	s.AddPainPoint("churn")
	s.MarkDiscussed(ServiceAI)
	s.SetQualification(QualBudget, "$50k")

	c := s.Clone()
	c.AppendAgent("hello")
	c.SetCustomerInfo(InfoCompany, "Acme")
	c.AddPainPoint("fraud")
	c.MarkDiscussed(ServiceDevOps)
	c.SetQualification(QualTimeline, "next quarter")
	c.InfoGathered = true

	assert.Len(t, s.History, 1)
	assert.NotContains(t, s.CustomerInfo, InfoCompany)
	assert.Equal(t, []string{"churn"}, s.PainPoints)
	assert.Equal(t, []ServiceType{ServiceAI}, s.DiscussedServices)
	assert.NotContains(t, s.QualificationData, QualTimeline)
	assert.False(t, s.InfoGathered)
}

func TestParseServiceType(t *testing.T) {
	tests := map[string]ServiceType{
		"AI":         ServiceAI,
		"ai":         ServiceAI,
		"AI/ML":      ServiceAI,
		"BigData":    ServiceBigData,
		"blockchain": ServiceBlockchain,
		"QaaS":       ServiceQaaS,
		"":           ServiceGeneral,
		"quantum":    ServiceGeneral,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseServiceType(raw), "raw=%q", raw)
	}
}

func TestQualified(t *testing.T) {
	tests := []struct {
		name string
		q    map[string]string
		want bool
	}{
		{"empty", map[string]string{}, false},
		{"timeline only", map[string]string{QualTimeline: "next month"}, false},
		{"budget only", map[string]string{QualBudget: "$100k"}, false},
		{"timeline and budget", map[string]string{QualTimeline: "Q3", QualBudget: "$100k"}, true},
		{"timeline and decision", map[string]string{QualTimeline: "Q3", QualDecisionProcess: "CTO signs off"}, true},
		{"unknown timeline", map[string]string{QualTimeline: "unknown", QualBudget: "$100k"}, false},
		{"budget none", map[string]string{QualTimeline: "Q3", QualBudget: "none"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Qualified(tt.q))
		})
	}
}
