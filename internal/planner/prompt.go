package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kode4food/beckn/pkg/api"
)

// ActionTypes lists the flexibility services a plan may request. Each one is
// also an inventory key on the responder side
var ActionTypes = []string{
	"dispatch_battery_discharge",
	"reduce_ev_load",
	"shift_hvac_load",
	"deploy_mobile_generator",
}

const promptTemplate = `You are a Distribution System Operator flexibility orchestrator.
Manage grid congestion and prevent outages using distributed energy resources
and flexibility services.

SCENARIO:
Location: %s
Event: %s
Start: %s
Duration: %d hours

ASSETS:
%s

IDENTIFIED RISKS:
%s

TASK:
Produce a flexibility dispatch plan for the high and critical risks. Prefer
demand response over physical intervention. For each action give asset_id,
action_type (one of: %s), urgency (low, medium or high), justification and
target_time (RFC3339).

Return ONLY a JSON object with the keys "summary_text" and
"mitigation_actions".
`

// BuildPrompt renders the model prompt for a request
func BuildPrompt(req *api.MitigationRequest) (string, error) {
	assets, err := json.MarshalIndent(req.Assets, "", "  ")
	if err != nil {
		return "", err
	}
	risks, err := json.MarshalIndent(req.Risks, "", "  ")
	if err != nil {
		return "", err
	}
	sc := req.Scenario
	return fmt.Sprintf(promptTemplate,
		sc.Location, sc.EventType, sc.StartDate, sc.DurationHours,
		assets, risks, strings.Join(ActionTypes, ", "),
	), nil
}
