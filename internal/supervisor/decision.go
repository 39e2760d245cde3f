// ABOUTME: Routing decisions produced by a supervisor
// ABOUTME: Route labels, the Decision union and decoding of raw tool calls

package supervisor

import (
	"context"
	"strings"

	"github.com/2389/coven-voice/internal/state"
)

// Route names the stage handler chosen for a turn. The values double as the
// tool names offered to the classifier.
type Route string

const (
	RouteGatherInfo  Route = "gather_information"
	RouteServiceInfo Route = "provide_service_info"
	RouteQualify     Route = "qualify_customer"
	RouteSchedule    Route = "schedule_callback"
	RouteEnd         Route = "end_call"
)

// Routes lists every route in menu order.
var Routes = []Route{RouteGatherInfo, RouteServiceInfo, RouteQualify, RouteSchedule, RouteEnd}

// Valid reports whether r is a known route.
func (r Route) Valid() bool {
	for _, known := range Routes {
		if r == known {
			return true
		}
	}
	return false
}

// Decision is the supervisor's verdict for one turn.
type Decision struct {
	Route Route
	// ServiceType is set only for RouteServiceInfo, and only when the
	// classifier named a category.
	ServiceType state.ServiceType
	// Fallback marks a decision taken because the classifier produced
	// nothing actionable.
	Fallback bool
	// Reason is a short label for logs.
	Reason string
}

// GatherInfo routes to discovery.
func GatherInfo() Decision { return Decision{Route: RouteGatherInfo} }

// ProvideServiceInfo routes to the service-info stage for st.
func ProvideServiceInfo(st state.ServiceType) Decision {
	return Decision{Route: RouteServiceInfo, ServiceType: st}
}

// QualifyCustomer routes to qualification.
func QualifyCustomer() Decision { return Decision{Route: RouteQualify} }

// ScheduleCallback routes to scheduling.
func ScheduleCallback() Decision { return Decision{Route: RouteSchedule} }

// EndCall routes to the end stage.
func EndCall() Decision { return Decision{Route: RouteEnd} }

// Fallback routes like ProvideServiceInfo(General) and records why.
func Fallback(reason string) Decision {
	return Decision{Route: RouteServiceInfo, ServiceType: state.ServiceGeneral, Fallback: true, Reason: reason}
}

// Decode turns a raw tool call into a Decision. Unknown names fall back.
func Decode(name string, args map[string]any) Decision {
	switch Route(strings.TrimSpace(name)) {
	case RouteGatherInfo:
		return GatherInfo()
	case RouteServiceInfo:
		raw, _ := args["service_type"].(string)
		if strings.TrimSpace(raw) == "" {
			return Decision{Route: RouteServiceInfo}
		}
		return ProvideServiceInfo(state.ParseServiceType(raw))
	case RouteQualify:
		return QualifyCustomer()
	case RouteSchedule:
		return ScheduleCallback()
	case RouteEnd:
		return EndCall()
	}
	return Fallback("unknown tool " + name)
}

// Supervisor decides which handler answers the current turn.
type Supervisor interface {
	Decide(ctx context.Context, st *state.ConversationState) Decision
}

// Policy holds the checks applied before any classification.
type Policy struct {
	// MaxTurns ends the call once TurnCount exceeds it. Zero disables the limit.
	MaxTurns int
}

// precheck returns a forced decision, if any.
func (p Policy) precheck(st *state.ConversationState) (Decision, bool) {
	switch {
	case st.ShouldEnd:
		d := EndCall()
		d.Reason = "should end"
		return d, true
	case st.Stage.Terminal():
		d := EndCall()
		d.Reason = "stage ended"
		return d, true
	case p.MaxTurns > 0 && st.TurnCount > p.MaxTurns:
		d := EndCall()
		d.Reason = "turn limit"
		return d, true
	}
	return Decision{}, false
}
