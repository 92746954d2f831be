package confirm

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

var pipelineNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// JoinConfig describes an optional two-table join in the pipeline
type JoinConfig struct {
	Enabled    bool   `json:"enabled"`
	LeftTable  string `json:"leftTable"`
	RightTable string `json:"rightTable"`
	LeftKey    string `json:"leftKey"`
	RightKey   string `json:"rightKey"`
}

// PipelineCreateContext is the payload of the final create step
type PipelineCreateContext struct {
	SessionID     string     `json:"sessionId"`
	SuggestedName string     `json:"suggestedName"`
	Source        string     `json:"source"`
	Destination   string     `json:"destination"`
	Tables        []string   `json:"tables"`
	Join          JoinConfig `json:"join"`
}

// PipelineCreateView names the pipeline and optionally configures a join
type PipelineCreateView struct {
	base
	Context PipelineCreateContext

	name string
	join JoinConfig
}

func newPipelineCreateView(d directive.Directive, cb Callbacks) (*PipelineCreateView, error) {
	v := &PipelineCreateView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	v.name = v.Context.SuggestedName
	v.join = v.Context.Join
	return v, nil
}

func (v *PipelineCreateView) Title() string { return "Create pipeline" }

func (v *PipelineCreateView) SetName(name string) { v.name = strings.TrimSpace(name) }

func (v *PipelineCreateView) Name() string { return v.name }

// SetJoin replaces the join configuration
func (v *PipelineCreateView) SetJoin(j JoinConfig) { v.join = j }

func (v *PipelineCreateView) Join() JoinConfig { return v.join }

// ValidatePipelineName checks a pipeline name against the naming rules
func ValidatePipelineName(name string) error {
	if name == "" {
		return perrors.FieldError("pipeline_name", "pipeline name is required")
	}
	if !pipelineNamePattern.MatchString(name) {
		return perrors.FieldError("pipeline_name",
			"use 1-63 letters, digits, '-' or '_', starting with a letter or digit")
	}
	return nil
}

func (v *PipelineCreateView) Confirm(ctx context.Context) error {
	if err := ValidatePipelineName(v.name); err != nil {
		return err
	}
	fields := map[string]any{"pipeline_name": v.name}
	if v.join.Enabled {
		if v.join.LeftKey == "" || v.join.RightKey == "" {
			return perrors.FieldError("join_config", "join keys are required when a join is enabled")
		}
		fields["join_config"] = map[string]any{
			"enabled":    true,
			"leftTable":  v.join.LeftTable,
			"rightTable": v.join.RightTable,
			"leftKey":    v.join.LeftKey,
			"rightKey":   v.join.RightKey,
		}
	}
	return v.submit(ctx, fields)
}

// AlertRule is one monitoring rule proposed by the agent
type AlertRule struct {
	ID        string  `json:"id"`
	Metric    string  `json:"metric"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
}

func (r AlertRule) String() string {
	return fmt.Sprintf("%s %s %g", r.Metric, r.Condition, r.Threshold)
}

// AlertConfigContext is the payload of an alert configuration step
type AlertConfigContext struct {
	SessionID    string      `json:"sessionId"`
	PipelineName string      `json:"pipelineName"`
	Rules        []AlertRule `json:"rules"`
	Channels     []string    `json:"channels"`
}

// AlertConfigView enables alert rules and takes a notification address
type AlertConfigView struct {
	base
	Context AlertConfigContext

	email    string
	disabled map[string]bool
}

func newAlertConfigView(d directive.Directive, cb Callbacks) (*AlertConfigView, error) {
	v := &AlertConfigView{base: base{d: d, cb: cb}, disabled: make(map[string]bool)}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *AlertConfigView) Title() string { return "Configure alerts" }

func (v *AlertConfigView) SetEmail(email string) { v.email = strings.TrimSpace(email) }

func (v *AlertConfigView) Email() string { return v.email }

// ToggleRule enables or disables one rule by id or 1-based position
func (v *AlertConfigView) ToggleRule(ref string) error {
	i, err := chooseByRef(ref, len(v.Context.Rules),
		func(i int) string { return v.Context.Rules[i].ID },
		func(i int) string { return v.Context.Rules[i].Metric })
	if err != nil {
		return err
	}
	id := v.Context.Rules[i].ID
	v.disabled[id] = !v.disabled[id]
	return nil
}

func (v *AlertConfigView) RuleEnabled(id string) bool { return !v.disabled[id] }

// EnabledRules returns the ids of enabled rules in payload order
func (v *AlertConfigView) EnabledRules() []string {
	out := make([]string, 0, len(v.Context.Rules))
	for _, r := range v.Context.Rules {
		if !v.disabled[r.ID] {
			out = append(out, r.ID)
		}
	}
	return out
}

func (v *AlertConfigView) Confirm(ctx context.Context) error {
	fields := map[string]any{"enabled_rules": v.EnabledRules()}
	if v.email != "" {
		addr, err := mail.ParseAddress(v.email)
		if err != nil || addr.Address != v.email {
			return perrors.FieldError("alert_email", "not a valid email address")
		}
		fields["alert_email"] = v.email
	}
	return v.submit(ctx, fields)
}
