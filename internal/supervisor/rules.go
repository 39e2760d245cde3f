// ABOUTME: Deterministic keyword supervisor for offline runs and tests
// ABOUTME: Classifies the last utterance against ordered rule tables

package supervisor

import (
	"context"
	"regexp"
	"strings"

	"github.com/2389/coven-voice/internal/state"
)

type keywordRule struct {
	pattern *regexp.Regexp
	route   Route
	service state.ServiceType
}

func words(alts ...string) *regexp.Regexp {
	quoted := make([]string, len(alts))
	for i, a := range alts {
		quoted[i] = regexp.QuoteMeta(a)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Rules are checked in order; the first match wins.
var intentRules = []keywordRule{
	{pattern: words("not interested", "goodbye", "bye", "hang up", "stop calling", "remove me", "no thanks"), route: RouteEnd},
	{pattern: words("call back", "callback", "call me back", "later", "busy", "another time", "schedule", "follow up", "next week"), route: RouteSchedule},
}

var qualifyRule = words("budget", "pricing", "price", "cost", "timeline", "how much", "proposal", "demo", "very interested", "sounds great")

var serviceRules = []keywordRule{
	{pattern: words("ai", "artificial intelligence", "machine learning", "ml", "chatbot", "computer vision"), service: state.ServiceAI},
	{pattern: words("blockchain", "smart contract", "smart contracts", "web3", "crypto"), service: state.ServiceBlockchain},
	{pattern: words("devops", "kubernetes", "ci/cd", "deployment", "deployments", "cloud", "infrastructure"), service: state.ServiceDevOps},
	{pattern: words("testing", "qa", "quality assurance", "test automation"), service: state.ServiceQaaS},
	{pattern: words("big data", "analytics", "data pipeline", "data pipelines", "data lake", "warehouse"), service: state.ServiceBigData},
}

// Rules routes with keyword tables instead of a model.
type Rules struct {
	policy Policy
}

// NewRules creates a rule-table supervisor.
func NewRules(policy Policy) *Rules {
	return &Rules{policy: policy}
}

// Decide classifies the caller's last utterance.
func (r *Rules) Decide(_ context.Context, st *state.ConversationState) Decision {
	if d, ok := r.policy.precheck(st); ok {
		return d
	}

	text := strings.ToLower(st.LastUserText())
	for _, rule := range intentRules {
		if rule.pattern.MatchString(text) {
			return Decision{Route: rule.route, Reason: "rule"}
		}
	}

	if !st.InfoGathered {
		d := GatherInfo()
		d.Reason = "rule"
		return d
	}

	if qualifyRule.MatchString(text) && len(st.DiscussedServices) > 0 {
		d := QualifyCustomer()
		d.Reason = "rule"
		return d
	}

	for _, rule := range serviceRules {
		if rule.pattern.MatchString(text) {
			d := ProvideServiceInfo(rule.service)
			d.Reason = "rule"
			return d
		}
	}

	return Fallback("no rule matched")
}

// Ensure Rules implements Supervisor
var _ Supervisor = (*Rules)(nil)
