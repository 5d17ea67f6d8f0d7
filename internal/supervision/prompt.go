package supervision

import (
	"fmt"
	"strings"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/specialist"
)

// buildPrompt renders the routing prompt. Agents and tools are listed in
// separate sections so the model does not treat a lookup as a specialist.
func buildPrompt(state *routing.State, targets []routing.Target, specs map[routing.Target]specialist.Spec, lookupDesc, correction string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "USER QUESTION:\n%s\n\n", state.UserQuestion())

	b.WriteString("AGENTS (stateful specialists that reason over the request and may use their own tools):\n")
	for _, t := range targets {
		if t.Kind() != routing.KindSpecialist {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", t, specs[t].Description)
	}

	if lookupDesc != "" {
		b.WriteString("\nTOOLS (stateless lookups that return data, not answers; each runs at most once per turn):\n")
		used := ""
		if state.WasInvoked(routing.TargetLookup) {
			used = " [already used this turn]"
		}
		fmt.Fprintf(&b, "- %s: %s%s\n", routing.TargetLookup, lookupDesc, used)
	}

	fmt.Fprintf(&b, "\nFINISH: choose %s when the question is answered. The final answer is assembled from the responses below.\n", routing.TargetTerminal)

	if responses := state.SpecialistResponses(); len(responses) > 0 {
		b.WriteString("\nSPECIALIST RESPONSES SO FAR:\n")
		for _, r := range responses {
			fmt.Fprintf(&b, "[%s]\n%s\n", r.Source, r.Text)
		}
	}
	if lookups := state.LookupResponses(); len(lookups) > 0 {
		b.WriteString("\nLOOKUP RESULTS SO FAR:\n")
		for _, l := range lookups {
			fmt.Fprintf(&b, "[%s]\n%s\n", l.Tool, l.Payload)
		}
	}

	if correction != "" {
		fmt.Fprintf(&b, "\nNOTE: %s\n", correction)
	}
	return b.String()
}
