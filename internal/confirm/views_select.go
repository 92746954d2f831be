package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

// SourceOption is one connectable source offered by the agent
type SourceOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// SourceSelectContext is the payload of a sourceSelect directive
type SourceSelectContext struct {
	SessionID string         `json:"sessionId"`
	Prompt    string         `json:"prompt"`
	Sources   []SourceOption `json:"sources"`
}

// SourceSelectView asks the user to pick one source
type SourceSelectView struct {
	base
	Context  SourceSelectContext
	selected int
}

func newSourceSelectView(d directive.Directive, cb Callbacks) (*SourceSelectView, error) {
	v := &SourceSelectView{base: base{d: d, cb: cb}, selected: -1}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	if len(v.Context.Sources) == 1 {
		v.selected = 0
	}
	return v, nil
}

func (v *SourceSelectView) Title() string { return "Select a source" }

// Choose selects a source by id, name, or 1-based position
func (v *SourceSelectView) Choose(ref string) error {
	i, err := chooseByRef(ref, len(v.Context.Sources),
		func(i int) string { return v.Context.Sources[i].ID },
		func(i int) string { return v.Context.Sources[i].Name })
	if err != nil {
		return err
	}
	v.selected = i
	return nil
}

// Selected returns the chosen source, if any
func (v *SourceSelectView) Selected() (SourceOption, bool) {
	if v.selected < 0 {
		return SourceOption{}, false
	}
	return v.Context.Sources[v.selected], true
}

func (v *SourceSelectView) Confirm(ctx context.Context) error {
	s, ok := v.Selected()
	if !ok {
		return perrors.FieldError("source_id", "choose a source first")
	}
	return v.submit(ctx, map[string]any{"source_id": s.ID})
}

// SavedCredential is a credential the backend already stores for the user
type SavedCredential struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CredentialsContext is the payload of a credentials directive
type CredentialsContext struct {
	SessionID        string            `json:"sessionId"`
	SourceType       string            `json:"sourceType"`
	Host             string            `json:"host"`
	Port             int               `json:"port"`
	Database         string            `json:"database"`
	Username         string            `json:"username"`
	SavedCredentials []SavedCredential `json:"savedCredentials"`
}

// CredentialsView collects either a saved credential or a username and
// password. The password is masked until the user reveals it.
type CredentialsView struct {
	base
	Context CredentialsContext

	credentialID string
	username     string
	password     string
	revealed     bool
}

func newCredentialsView(d directive.Directive, cb Callbacks) (*CredentialsView, error) {
	v := &CredentialsView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	v.username = v.Context.Username
	return v, nil
}

func (v *CredentialsView) Title() string {
	if v.Context.SourceType != "" {
		return fmt.Sprintf("Credentials for %s", v.Context.SourceType)
	}
	return "Credentials"
}

// UseSaved picks a stored credential, which takes precedence over a typed
// password
func (v *CredentialsView) UseSaved(ref string) error {
	i, err := chooseByRef(ref, len(v.Context.SavedCredentials),
		func(i int) string { return v.Context.SavedCredentials[i].ID },
		func(i int) string { return v.Context.SavedCredentials[i].Name })
	if err != nil {
		return err
	}
	v.credentialID = v.Context.SavedCredentials[i].ID
	return nil
}

// ClearSaved goes back to typing a username and password
func (v *CredentialsView) ClearSaved() { v.credentialID = "" }

func (v *CredentialsView) SavedID() string { return v.credentialID }

func (v *CredentialsView) SetUsername(u string) { v.username = strings.TrimSpace(u) }

func (v *CredentialsView) Username() string { return v.username }

func (v *CredentialsView) SetPassword(p string) { v.password = p }

// ToggleReveal flips between masked and plain password display
func (v *CredentialsView) ToggleReveal() { v.revealed = !v.revealed }

func (v *CredentialsView) Revealed() bool { return v.revealed }

// DisplayPassword is what a renderer may show for the password field
func (v *CredentialsView) DisplayPassword() string {
	if v.revealed {
		return v.password
	}
	return strings.Repeat("•", len([]rune(v.password)))
}

func (v *CredentialsView) Confirm(ctx context.Context) error {
	if v.credentialID != "" {
		return v.submit(ctx, map[string]any{"credential_id": v.credentialID})
	}
	if v.username == "" {
		return perrors.FieldError("username", "username is required")
	}
	if v.password == "" {
		return perrors.FieldError("password", "password is required")
	}
	return v.submit(ctx, map[string]any{
		"username": v.username,
		"password": v.password,
	})
}

// TableOption is one table discovered in the source
type TableOption struct {
	Name     string `json:"name"`
	Schema   string `json:"schema"`
	RowCount int64  `json:"rowCount"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// TableSelectContext is the payload of a tableSelect directive
type TableSelectContext struct {
	SessionID string        `json:"sessionId"`
	Tables    []TableOption `json:"tables"`
}

// TableSelectView lets the user pick which eligible tables to replicate
type TableSelectView struct {
	base
	Context  TableSelectContext
	selected map[string]bool
}

func newTableSelectView(d directive.Directive, cb Callbacks) (*TableSelectView, error) {
	v := &TableSelectView{base: base{d: d, cb: cb}, selected: make(map[string]bool)}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *TableSelectView) Title() string { return "Select tables" }

// Toggle flips one table by name or 1-based position
func (v *TableSelectView) Toggle(ref string) error {
	i, err := chooseByRef(ref, len(v.Context.Tables),
		func(i int) string { return v.Context.Tables[i].Name },
		func(i int) string { return v.Context.Tables[i].Name })
	if err != nil {
		return err
	}
	t := v.Context.Tables[i]
	if !t.Eligible {
		return ErrIneligible
	}
	if v.selected[t.Name] {
		delete(v.selected, t.Name)
	} else {
		v.selected[t.Name] = true
	}
	return nil
}

// ToggleAllEligible selects every eligible table, or clears the selection
// when every eligible table is already selected
func (v *TableSelectView) ToggleAllEligible() {
	if v.AllEligibleSelected() {
		v.selected = make(map[string]bool)
		return
	}
	for _, t := range v.Context.Tables {
		if t.Eligible {
			v.selected[t.Name] = true
		}
	}
}

// AllEligibleSelected reports whether the selection covers every eligible
// table. It is false when nothing is eligible.
func (v *TableSelectView) AllEligibleSelected() bool {
	seen := false
	for _, t := range v.Context.Tables {
		if !t.Eligible {
			continue
		}
		seen = true
		if !v.selected[t.Name] {
			return false
		}
	}
	return seen
}

func (v *TableSelectView) IsSelected(name string) bool { return v.selected[name] }

// Selected returns the chosen table names in payload order
func (v *TableSelectView) Selected() []string {
	out := make([]string, 0, len(v.selected))
	for _, t := range v.Context.Tables {
		if v.selected[t.Name] {
			out = append(out, t.Name)
		}
	}
	return out
}

func (v *TableSelectView) Confirm(ctx context.Context) error {
	names := v.Selected()
	if len(names) == 0 {
		return perrors.FieldError("selected_tables", "select at least one table")
	}
	return v.submit(ctx, map[string]any{"selected_tables": names})
}

// DestinationOption is one place the pipeline can write to
type DestinationOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// DestinationContext is the payload of a destination directive
type DestinationContext struct {
	SessionID    string              `json:"sessionId"`
	Destinations []DestinationOption `json:"destinations"`
	Recommended  string              `json:"recommended"`
}

// DestinationView picks the pipeline destination, starting from the
// agent's recommendation
type DestinationView struct {
	base
	Context  DestinationContext
	selected int
}

func newDestinationView(d directive.Directive, cb Callbacks) (*DestinationView, error) {
	v := &DestinationView{base: base{d: d, cb: cb}, selected: -1}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	for i, opt := range v.Context.Destinations {
		if v.Context.Recommended != "" && opt.ID == v.Context.Recommended {
			v.selected = i
			break
		}
	}
	return v, nil
}

func (v *DestinationView) Title() string { return "Choose a destination" }

func (v *DestinationView) Choose(ref string) error {
	i, err := chooseByRef(ref, len(v.Context.Destinations),
		func(i int) string { return v.Context.Destinations[i].ID },
		func(i int) string { return v.Context.Destinations[i].Name })
	if err != nil {
		return err
	}
	v.selected = i
	return nil
}

func (v *DestinationView) Selected() (DestinationOption, bool) {
	if v.selected < 0 {
		return DestinationOption{}, false
	}
	return v.Context.Destinations[v.selected], true
}

func (v *DestinationView) Confirm(ctx context.Context) error {
	dst, ok := v.Selected()
	if !ok {
		return perrors.FieldError("destination_id", "choose a destination first")
	}
	return v.submit(ctx, map[string]any{"destination_id": dst.ID})
}
