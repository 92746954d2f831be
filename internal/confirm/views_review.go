package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rohankatakam/pipepilot/internal/directive"
)

// FilterContext is the payload of a filter suggestion
type FilterContext struct {
	SessionID        string  `json:"sessionId"`
	Table            string  `json:"table"`
	Expression       string  `json:"expression"`
	Description      string  `json:"description"`
	OriginalRowCount float64 `json:"originalRowCount"`
	FilteredRowCount float64 `json:"filteredRowCount"`
}

// FilterView shows a suggested row filter and its effect
type FilterView struct {
	base
	Context FilterContext
}

func newFilterView(d directive.Directive, cb Callbacks) (*FilterView, error) {
	v := &FilterView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *FilterView) Title() string {
	if v.Context.Table != "" {
		return fmt.Sprintf("Apply filter to %s", v.Context.Table)
	}
	return "Apply filter"
}

// Reduction is the percentage of rows the filter removes
func (v *FilterView) Reduction() int {
	return ReductionPercent(v.Context.OriginalRowCount, v.Context.FilteredRowCount)
}

func (v *FilterView) Confirm(ctx context.Context) error {
	return v.submit(ctx, map[string]any{"apply_filter": true})
}

// ReductionPercent returns round((original-filtered)/original*100) clamped
// to [0,100]. A non-positive original yields 0.
func ReductionPercent(original, filtered float64) int {
	if original <= 0 || math.IsNaN(original) || math.IsNaN(filtered) {
		return 0
	}
	pct := math.Round((original - filtered) / original * 100)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// SchemaField is one column of a previewed schema
type SchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// SchemaPreviewContext is the payload of a schema approval
type SchemaPreviewContext struct {
	SessionID string        `json:"sessionId"`
	Table     string        `json:"table"`
	Format    string        `json:"format"`
	Fields    []SchemaField `json:"fields"`
}

// SchemaPreviewView shows a generated schema for approval
type SchemaPreviewView struct {
	base
	Context SchemaPreviewContext
}

func newSchemaPreviewView(d directive.Directive, cb Callbacks) (*SchemaPreviewView, error) {
	v := &SchemaPreviewView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *SchemaPreviewView) Title() string {
	if v.Context.Table != "" {
		return fmt.Sprintf("Approve schema for %s", v.Context.Table)
	}
	return "Approve schema"
}

// RawPayload is the schema exactly as the agent sent it
func (v *SchemaPreviewView) RawPayload() (string, error) {
	return rawValue(v.d.Data["schema"])
}

// Copy puts the raw schema on the clipboard
func (v *SchemaPreviewView) Copy(cb Clipboard) error {
	return copyRaw(cb, v.d.Data["schema"])
}

func (v *SchemaPreviewView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}

// CostItem is one line of a cost breakdown
type CostItem struct {
	Item   string  `json:"item"`
	Amount float64 `json:"amount"`
}

// CostContext is the payload of a cost estimate
type CostContext struct {
	SessionID       string     `json:"sessionId"`
	Currency        string     `json:"currency"`
	MonthlyEstimate float64    `json:"monthlyEstimate"`
	Breakdown       []CostItem `json:"breakdown"`
}

// CostView asks the user to accept an estimated monthly cost
type CostView struct {
	base
	Context CostContext
}

func newCostView(d directive.Directive, cb Callbacks) (*CostView, error) {
	v := &CostView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *CostView) Title() string { return "Accept estimated cost" }

// Total prefers the agent's estimate and falls back to the breakdown sum
func (v *CostView) Total() float64 {
	if v.Context.MonthlyEstimate > 0 {
		return v.Context.MonthlyEstimate
	}
	var sum float64
	for _, item := range v.Context.Breakdown {
		sum += item.Amount
	}
	return sum
}

// FormattedTotal renders the total with its currency
func (v *CostView) FormattedTotal() string {
	currency := v.Context.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s/month", v.Total(), currency)
}

func (v *CostView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}

// Topic is one stream topic the agent wants to register
type Topic struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
	Subject    string `json:"subject"`
}

// TopicRegistryContext is the payload of a topic registration
type TopicRegistryContext struct {
	SessionID string  `json:"sessionId"`
	Topics    []Topic `json:"topics"`
}

// TopicRegistryView approves topic and schema-subject registration
type TopicRegistryView struct {
	base
	Context TopicRegistryContext
}

func newTopicRegistryView(d directive.Directive, cb Callbacks) (*TopicRegistryView, error) {
	v := &TopicRegistryView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *TopicRegistryView) Title() string { return "Register topics" }

// RawPayload is the data contract exactly as the agent sent it
func (v *TopicRegistryView) RawPayload() (string, error) {
	return rawValue(v.d.Data["contract"])
}

func (v *TopicRegistryView) Copy(cb Clipboard) error {
	return copyRaw(cb, v.d.Data["contract"])
}

func (v *TopicRegistryView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}

// Resource is one piece of infrastructure the pipeline will create
type Resource struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ResourcesContext is the payload of a resource summary
type ResourcesContext struct {
	SessionID string     `json:"sessionId"`
	Resources []Resource `json:"resources"`
}

// ResourcesView summarizes provisioned resources
type ResourcesView struct {
	base
	Context ResourcesContext
}

func newResourcesView(d directive.Directive, cb Callbacks) (*ResourcesView, error) {
	v := &ResourcesView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *ResourcesView) Title() string { return "Review resources" }

// CountByKind groups resources for a one-line summary
func (v *ResourcesView) CountByKind() map[string]int {
	out := make(map[string]int)
	for _, r := range v.Context.Resources {
		out[r.Kind]++
	}
	return out
}

func (v *ResourcesView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}

// rawValue returns strings verbatim and JSON-encodes anything else
func rawValue(val any) (string, error) {
	switch t := val.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	}
	out, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func copyRaw(cb Clipboard, val any) error {
	raw, err := rawValue(val)
	if err != nil {
		return err
	}
	return cb.WriteAll(raw)
}
