package api

type (
	// Scenario describes the weather event a mitigation plan responds to
	Scenario struct {
		Location      string `json:"location"`
		EventType     string `json:"event_type"`
		StartDate     string `json:"start_date"`
		DurationHours int    `json:"duration_hours"`
	}

	// Asset is a physical or electrical asset exposed to the scenario
	Asset struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Type        string  `json:"type"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		CapacityKW  float64 `json:"capacity_kw"`
		Criticality string  `json:"criticality"`
	}

	// Risk is the assessed risk for one asset
	Risk struct {
		AssetID        string `json:"asset_id"`
		RiskLevel      string `json:"risk_level"`
		Reason         string `json:"reason"`
		ExpectedImpact string `json:"expected_impact"`
	}

	// MitigationRequest bundles everything a planner needs
	MitigationRequest struct {
		Scenario Scenario `json:"scenario"`
		Risks    []Risk   `json:"risks"`
		Assets   []Asset  `json:"assets"`
	}

	// MitigationAction is one recommended action. ActionType doubles as the
	// service type searched for when the action is executed
	MitigationAction struct {
		AssetID       string `json:"asset_id"`
		ActionType    string `json:"action_type"`
		Urgency       string `json:"urgency"`
		Justification string `json:"justification"`
		TargetTime    string `json:"target_time"`
	}

	// MitigationPlan is a planner's answer
	MitigationPlan struct {
		Summary string             `json:"summary_text"`
		Actions []MitigationAction `json:"mitigation_actions"`
	}
)
