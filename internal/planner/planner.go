// Package planner turns a scenario, its risks, and the exposed assets into a
// mitigation plan. Planners may call out to a generative model; WithFallback
// guarantees callers always get a plan back
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Planner produces a mitigation plan for a request
	Planner interface {
		Plan(context.Context, *api.MitigationRequest) (*api.MitigationPlan, error)
	}

	// Generator returns raw model text for a prompt
	Generator interface {
		Generate(ctx context.Context, prompt string) (string, error)
	}

	// GeneratorFunc adapts a function to the Generator interface
	GeneratorFunc func(ctx context.Context, prompt string) (string, error)

	// Model plans by prompting a Generator and parsing its answer
	Model struct {
		gen Generator
	}

	fallback struct {
		next Planner
	}
)

const (
	keySummary = "summary_text"
	keyActions = "mitigation_actions"

	fallbackPrefix = "Error generating AI plan: "
	fence          = "```"
)

var (
	ErrNilRequest     = errors.New("mitigation request is nil")
	ErrEmptyResponse  = errors.New("empty model response")
	ErrInvalidJSON    = errors.New("model response is not valid JSON")
	ErrMissingField   = errors.New("model response missing field")
	ErrInvalidActions = errors.New("mitigation actions must be a list")
	ErrNoPlan         = errors.New("planner returned no plan")
	ErrPlannerPanic   = errors.New("planner panicked")
)

// NewModel creates a Model planner
func NewModel(gen Generator) *Model {
	return &Model{gen: gen}
}

// Plan prompts the generator and parses its answer
func (m *Model) Plan(
	ctx context.Context, req *api.MitigationRequest,
) (*api.MitigationPlan, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	text, err := m.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParsePlan(text)
}

// Generate calls the wrapped function
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// WithFallback wraps a Planner so that Plan never fails. Any error becomes
// a plan with no actions whose summary describes the error, as does a
// missing plan or a panic in the wrapped Planner
func WithFallback(p Planner) Planner {
	return &fallback{next: p}
}

func (f *fallback) Plan(
	ctx context.Context, req *api.MitigationRequest,
) (*api.MitigationPlan, error) {
	plan, err := f.tryPlan(ctx, req)
	if err == nil && plan == nil {
		err = ErrNoPlan
	}
	if err == nil {
		return plan, nil
	}
	slog.Error("Plan generation failed", log.Error(err))
	return Fallback(err), nil
}

func (f *fallback) tryPlan(
	ctx context.Context, req *api.MitigationRequest,
) (plan *api.MitigationPlan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plan, err = nil, fmt.Errorf("%w: %v", ErrPlannerPanic, r)
		}
	}()
	return f.next.Plan(ctx, req)
}

// Fallback builds the plan returned in place of a failed generation
func Fallback(err error) *api.MitigationPlan {
	return &api.MitigationPlan{
		Summary: fallbackPrefix + err.Error(),
		Actions: []api.MitigationAction{},
	}
}

// ParsePlan extracts a plan from model text. A markdown code fence around
// the JSON object is tolerated
func ParsePlan(text string) (*api.MitigationPlan, error) {
	body := stripFence(text)
	if body == "" {
		return nil, ErrEmptyResponse
	}
	if !gjson.Valid(body) {
		return nil, ErrInvalidJSON
	}

	res := gjson.Parse(body)
	if !res.Get(keySummary).Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, keySummary)
	}
	actions := res.Get(keyActions)
	if !actions.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, keyActions)
	}
	if actions.Type != gjson.Null && !actions.IsArray() {
		return nil, ErrInvalidActions
	}

	var plan api.MitigationPlan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if plan.Actions == nil {
		plan.Actions = []api.MitigationAction{}
	}
	return &plan, nil
}

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	start := strings.Index(s, fence)
	if start < 0 {
		return s
	}
	s = s[start+len(fence):]
	s = strings.TrimPrefix(s, "json")
	if end := strings.Index(s, fence); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
