// ABOUTME: Deterministic fact extraction from caller utterances
// ABOUTME: Anchored patterns for company, role, industry, pain points and qualification answers

package stages

import (
	"regexp"
	"strings"

	"github.com/2389/coven-voice/internal/state"
)

// Facts are what one utterance revealed.
type Facts struct {
	CustomerInfo  map[string]string
	PainPoints    []string
	Qualification map[string]string
}

// Empty reports whether nothing was found.
func (f Facts) Empty() bool {
	return len(f.CustomerInfo) == 0 && len(f.PainPoints) == 0 && len(f.Qualification) == 0
}

// Apply merges f into st. Known values are overwritten only by new non-empty ones.
func (f Facts) Apply(st *state.ConversationState) {
	for k, v := range f.CustomerInfo {
		st.SetCustomerInfo(k, v)
	}
	for _, p := range f.PainPoints {
		st.AddPainPoint(p)
	}
	for k, v := range f.Qualification {
		st.SetQualification(k, v)
	}
}

const wordTail = `[^.!?,;]+`

var (
	companyRe = regexp.MustCompile(`(?i:\b(?:i work (?:at|for)|i'm with|i am with|i'm from|i am from|our company is|my company is|we're called|we are called))\s+([A-Z][\w&.\-]*(?:\s+[A-Z][\w&.\-]*)*)`)

	roleRe = regexp.MustCompile(`(?i)\b(?:i'm|i am|i work as|as) (?:the |a |an |our )?((?:[a-z]+ )?(?:cto|ceo|cfo|coo|cio|co-founder|founder|manager|director|engineer|architect|developer|analyst|owner|vp(?: of [a-z]+)?|head of [a-z]+))\b`)

	painRe = regexp.MustCompile(`(?i)\b(?:struggl(?:e|ing) with|problems? with|issues? with|trouble with|challenge is|challenges are|pain point is|biggest problem is|hard to)\s+(` + wordTail + `)`)

	timelineRe = regexp.MustCompile(`(?i)\b((?:within|in the next|over the next|in|by) (?:a|one|two|three|four|five|six|nine|twelve|\d+) (?:weeks?|months?|quarters?|years?)|(?:this|next) (?:quarter|month|year)|asap|right away|immediately|q[1-4](?: \d{4})?)\b`)

	budgetRe   = regexp.MustCompile(`(?i)(\$\s?\d[\d,.]*(?:\s?(?:million|thousand|k|m)\b)?|\b\d[\d,.]*\s?(?:million|thousand|k)?\s(?:dollars|usd)\b)`)
	noBudgetRe = regexp.MustCompile(`(?i)\b(?:no budget|budget (?:is not|isn't) (?:set|allocated|decided))\b`)

	decisionRe = regexp.MustCompile(`(?i)\b(i(?:'m| am) the (?:decision[- ]maker|one who decides)|i make the (?:call|decision)s?|i have the final say|(?:my|our|the) (?:ceo|cto|cfo|board|boss|manager|team|partners?|leadership|founders?) (?:decides?|makes? the (?:call|decision)|signs? off|has the final say|approves?|would (?:need to )?approve))`)
)

// industryTerms map caller wording onto the catalog's industry keys.
var industryTerms = []struct {
	pattern  *regexp.Regexp
	industry string
}{
	{regexp.MustCompile(`(?i)\b(?:healthcare|health care|hospitals?|clinics?|medical|pharma)\b`), "healthcare"},
	{regexp.MustCompile(`(?i)\b(?:fintech)\b`), "fintech"},
	{regexp.MustCompile(`(?i)\b(?:finance|financial|banking|banks?|insurance|lending)\b`), "finance"},
	{regexp.MustCompile(`(?i)\b(?:e-commerce|ecommerce|online store)\b`), "e-commerce"},
	{regexp.MustCompile(`(?i)\b(?:retail|retailer|stores?)\b`), "retail"},
	{regexp.MustCompile(`(?i)\b(?:manufacturing|factory|factories)\b`), "manufacturing"},
	{regexp.MustCompile(`(?i)\b(?:logistics|supply chain|shipping)\b`), "supply chain"},
	{regexp.MustCompile(`(?i)\b(?:agriculture|farming)\b`), "agriculture"},
	{regexp.MustCompile(`(?i)\b(?:media|entertainment|publishing|streaming)\b`), "media & entertainment"},
	{regexp.MustCompile(`(?i)\b(?:education|edtech|university|school)\b`), "education"},
}

// Extract pulls facts from one utterance.
func Extract(utterance string) Facts {
	f := Facts{
		CustomerInfo:  map[string]string{},
		Qualification: map[string]string{},
	}

	if m := companyRe.FindStringSubmatch(utterance); m != nil {
		f.CustomerInfo[state.InfoCompany] = strings.TrimRight(m[1], ".")
	}
	if m := roleRe.FindStringSubmatch(utterance); m != nil {
		f.CustomerInfo[state.InfoRole] = strings.TrimSpace(m[1])
	}
	for _, term := range industryTerms {
		if term.pattern.MatchString(utterance) {
			f.CustomerInfo[state.InfoIndustry] = term.industry
			break
		}
	}

	for _, m := range painRe.FindAllStringSubmatch(utterance, -1) {
		if p := strings.TrimSpace(m[1]); p != "" {
			f.PainPoints = append(f.PainPoints, p)
		}
	}

	if m := timelineRe.FindStringSubmatch(utterance); m != nil {
		f.Qualification[state.QualTimeline] = strings.ToLower(m[1])
	}
	switch {
	case noBudgetRe.MatchString(utterance):
		f.Qualification[state.QualBudget] = "none"
	default:
		if m := budgetRe.FindStringSubmatch(utterance); m != nil {
			f.Qualification[state.QualBudget] = strings.TrimRight(strings.TrimSpace(m[1]), ".,")
		}
	}
	if m := decisionRe.FindStringSubmatch(utterance); m != nil {
		f.Qualification[state.QualDecisionProcess] = strings.ToLower(m[1])
	}
	return f
}
