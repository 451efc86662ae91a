package reconcile

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// formatAsJSON formats the plan as JSON.
func (pb *PlanBuilder) formatAsJSON(plan *PlanNode) (string, error) {
	bytes, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "marshal plan")
	}
	return string(bytes), nil
}
