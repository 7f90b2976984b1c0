package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kode4food/beckn/pkg/api"
)

// Rules is a deterministic planner used when no model is configured. It
// requests one flexibility service per high or critical risk
type Rules struct{}

const (
	riskCritical = "CRITICAL"
	riskHigh     = "HIGH"

	urgencyHigh   = "high"
	urgencyMedium = "medium"
)

var serviceByAssetType = map[string]string{
	"substation": "dispatch_battery_discharge",
	"ev_hub":     "reduce_ev_load",
	"building":   "shift_hvac_load",
}

// Plan implements Planner
func (Rules) Plan(
	_ context.Context, req *api.MitigationRequest,
) (*api.MitigationPlan, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	types := make(map[string]string, len(req.Assets))
	for _, a := range req.Assets {
		types[a.ID] = a.Type
	}

	actions := []api.MitigationAction{}
	for _, r := range req.Risks {
		var urgency string
		switch strings.ToUpper(r.RiskLevel) {
		case riskCritical:
			urgency = urgencyHigh
		case riskHigh:
			urgency = urgencyMedium
		default:
			continue
		}
		service, ok := serviceByAssetType[types[r.AssetID]]
		if !ok {
			service = "deploy_mobile_generator"
		}
		actions = append(actions, api.MitigationAction{
			AssetID:       r.AssetID,
			ActionType:    service,
			Urgency:       urgency,
			Justification: r.Reason,
			TargetTime:    req.Scenario.StartDate,
		})
	}

	return &api.MitigationPlan{
		Summary: fmt.Sprintf("%d flexibility actions for %s at %s",
			len(actions), req.Scenario.EventType, req.Scenario.Location),
		Actions: actions,
	}, nil
}
