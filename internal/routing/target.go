package routing

import "strings"

// Target is the closed set of destinations a routing decision may name.
type Target int

const (
	TargetInvalid Target = iota
	TargetTerminal
	TargetLookup
	TargetPortfolio
	TargetCampaign
	TargetGeneral
)

// Kind classifies a target for dispatch and for the routing prompt.
type Kind string

const (
	KindTerminal   Kind = "terminal"
	KindTool       Kind = "tool"
	KindSpecialist Kind = "specialist"
)

var targetNames = map[Target]string{
	TargetTerminal:  "FINISH",
	TargetLookup:    "semantic_search",
	TargetPortfolio: "portfolio_agent",
	TargetCampaign:  "campaign_agent",
	TargetGeneral:   "general_agent",
}

var targetAliases = map[string]Target{
	"finish":          TargetTerminal,
	"terminal":        TargetTerminal,
	"end":             TargetTerminal,
	"semantic_search": TargetLookup,
	"portfolio_agent": TargetPortfolio,
	"campaign_agent":  TargetCampaign,
	"general_agent":   TargetGeneral,
}

// String returns the canonical wire name of the target.
func (t Target) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return "invalid"
}

// Kind returns whether the target ends the turn, is a stateless lookup
// tool or is a stateful specialist.
func (t Target) Kind() Kind {
	switch t {
	case TargetTerminal:
		return KindTerminal
	case TargetLookup:
		return KindTool
	case TargetPortfolio, TargetCampaign, TargetGeneral:
		return KindSpecialist
	default:
		return ""
	}
}

// Valid reports whether t is a member of the enumeration.
func (t Target) Valid() bool {
	_, ok := targetNames[t]
	return ok
}

// ParseTarget maps a model-supplied name onto the enumeration. Matching is
// case-insensitive and ignores surrounding whitespace and quotes.
func ParseTarget(s string) (Target, bool) {
	key := strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`))
	t, ok := targetAliases[key]
	return t, ok
}

// AllTargets lists every valid target in declaration order.
func AllTargets() []Target {
	return []Target{TargetTerminal, TargetLookup, TargetPortfolio, TargetCampaign, TargetGeneral}
}

// Specialists lists the specialist targets.
func Specialists() []Target {
	return []Target{TargetPortfolio, TargetCampaign, TargetGeneral}
}
