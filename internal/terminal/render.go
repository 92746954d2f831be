package terminal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rohankatakam/pipepilot/internal/confirm"
	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/rohankatakam/pipepilot/internal/oauth"
	"github.com/rohankatakam/pipepilot/internal/session"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	narrativeStyle = lipgloss.NewStyle().
			Padding(0, 2)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// RenderTurn draws the narrative of a turn followed by one card per open
// confirmation. ref maps a view to the handle the user types to focus it.
func RenderTurn(rt session.RenderedTurn, ref func(confirm.View) int) string {
	var b strings.Builder

	switch rt.Role {
	case directive.RoleUser:
		b.WriteString(userStyle.Render("You"))
	default:
		b.WriteString(assistantStyle.Render("Pilot"))
	}
	b.WriteString("\n")

	if text := strings.TrimSpace(rt.Narrative); text != "" {
		b.WriteString(narrativeStyle.Render(text))
		b.WriteString("\n")
	}

	for _, v := range rt.Views {
		n := 0
		if ref != nil {
			n = ref(v)
		}
		b.WriteString(RenderView(v, n))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderView draws one confirmation card
func RenderView(v confirm.View, n int) string {
	var lines []string

	header := titleStyle.Render(v.Title())
	if n > 0 {
		header = mutedStyle.Render(fmt.Sprintf("[%d] ", n)) + header
	}
	lines = append(lines, header)
	lines = append(lines, body(v)...)

	switch {
	case v.Done():
		lines = append(lines, okStyle.Render("done"))
	case v.Submitting():
		lines = append(lines, mutedStyle.Render("sending..."))
	default:
		lines = append(lines, mutedStyle.Render(hint(v)))
	}

	return cardStyle.Render(strings.Join(lines, "\n"))
}

func body(v confirm.View) []string {
	switch t := v.(type) {
	case *confirm.SourceSelectView:
		return sourceLines(t)
	case *confirm.CredentialsView:
		return credentialLines(t)
	case *confirm.TableSelectView:
		return tableLines(t)
	case *confirm.FilterView:
		return filterLines(t)
	case *confirm.SchemaPreviewView:
		return schemaLines(t)
	case *confirm.DestinationView:
		return destinationLines(t)
	case *confirm.CostView:
		return costLines(t)
	case *confirm.AlertConfigView:
		return alertLines(t)
	case *confirm.TopicRegistryView:
		return topicLines(t)
	case *confirm.ResourcesView:
		return resourceLines(t)
	case *confirm.PipelineCreateView:
		return pipelineLines(t)
	case *confirm.ReprocessView:
		if t.Context.Description != "" {
			return []string{t.Context.Description}
		}
	case *confirm.LinkView:
		return []string{mutedStyle.Render(t.Context.URL)}
	case *confirm.OAuthView:
		return oauthLines(t)
	case *confirm.GenericView:
		if t.Context.Description != "" {
			return []string{t.Context.Description}
		}
	}
	return nil
}

func mark(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func sourceLines(v *confirm.SourceSelectView) []string {
	var out []string
	if v.Context.Prompt != "" {
		out = append(out, v.Context.Prompt)
	}
	sel, _ := v.Selected()
	for i, s := range v.Context.Sources {
		line := fmt.Sprintf("%s %d. %s", mark(s.ID == sel.ID && sel.ID != ""), i+1, s.Name)
		if s.Type != "" {
			line += mutedStyle.Render(" (" + s.Type + ")")
		}
		out = append(out, line)
	}
	return out
}

func credentialLines(v *confirm.CredentialsView) []string {
	var out []string
	if v.Context.Host != "" {
		out = append(out, mutedStyle.Render(fmt.Sprintf("%s:%d/%s", v.Context.Host, v.Context.Port, v.Context.Database)))
	}
	for i, c := range v.Context.SavedCredentials {
		out = append(out, fmt.Sprintf("%s %d. %s", mark(v.SavedID() == c.ID), i+1, c.Name))
	}
	if v.SavedID() == "" {
		out = append(out,
			"username: "+v.Username(),
			"password: "+v.DisplayPassword())
	}
	return out
}

func tableLines(v *confirm.TableSelectView) []string {
	out := make([]string, 0, len(v.Context.Tables)+1)
	for i, t := range v.Context.Tables {
		name := t.Name
		if t.Schema != "" {
			name = t.Schema + "." + t.Name
		}
		if !t.Eligible {
			line := fmt.Sprintf("  - %d. %s", i+1, name)
			if t.Reason != "" {
				line += " (" + t.Reason + ")"
			}
			out = append(out, mutedStyle.Render(line))
			continue
		}
		line := fmt.Sprintf("%s %d. %s", mark(v.IsSelected(t.Name)), i+1, name)
		if t.RowCount > 0 {
			line += mutedStyle.Render(fmt.Sprintf(" %d rows", t.RowCount))
		}
		out = append(out, line)
	}
	out = append(out, mutedStyle.Render(fmt.Sprintf("%d selected", len(v.Selected()))))
	return out
}

func filterLines(v *confirm.FilterView) []string {
	var out []string
	if v.Context.Description != "" {
		out = append(out, v.Context.Description)
	}
	if v.Context.Expression != "" {
		out = append(out, "where "+v.Context.Expression)
	}
	if v.Context.OriginalRowCount > 0 {
		out = append(out, fmt.Sprintf("%.0f -> %.0f rows (%d%% fewer)",
			v.Context.OriginalRowCount, v.Context.FilteredRowCount, v.Reduction()))
	}
	return out
}

func schemaLines(v *confirm.SchemaPreviewView) []string {
	out := make([]string, 0, len(v.Context.Fields))
	for _, f := range v.Context.Fields {
		line := fmt.Sprintf("  %s %s", f.Name, mutedStyle.Render(f.Type))
		if f.Nullable {
			line += mutedStyle.Render(" null")
		}
		out = append(out, line)
	}
	return out
}

func destinationLines(v *confirm.DestinationView) []string {
	sel, _ := v.Selected()
	out := make([]string, 0, len(v.Context.Destinations))
	for i, d := range v.Context.Destinations {
		line := fmt.Sprintf("%s %d. %s", mark(d.ID == sel.ID && sel.ID != ""), i+1, d.Name)
		if d.ID == v.Context.Recommended {
			line += okStyle.Render(" recommended")
		}
		out = append(out, line)
	}
	return out
}

func costLines(v *confirm.CostView) []string {
	out := make([]string, 0, len(v.Context.Breakdown)+1)
	for _, item := range v.Context.Breakdown {
		out = append(out, fmt.Sprintf("  %-24s %10.2f", item.Item, item.Amount))
	}
	out = append(out, "total "+v.FormattedTotal())
	return out
}

func alertLines(v *confirm.AlertConfigView) []string {
	out := make([]string, 0, len(v.Context.Rules)+1)
	for i, r := range v.Context.Rules {
		out = append(out, fmt.Sprintf("%s %d. %s", mark(v.RuleEnabled(r.ID)), i+1, r))
	}
	email := v.Email()
	if email == "" {
		email = mutedStyle.Render("(none)")
	}
	return append(out, "email: "+email)
}

func topicLines(v *confirm.TopicRegistryView) []string {
	out := make([]string, 0, len(v.Context.Topics))
	for _, t := range v.Context.Topics {
		out = append(out, fmt.Sprintf("  %s %s", t.Name,
			mutedStyle.Render(fmt.Sprintf("partitions=%d subject=%s", t.Partitions, t.Subject))))
	}
	return out
}

func resourceLines(v *confirm.ResourcesView) []string {
	counts := v.CountByKind()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := make([]string, 0, len(v.Context.Resources)+1)
	for _, r := range v.Context.Resources {
		out = append(out, fmt.Sprintf("  %s/%s %s", r.Kind, r.Name, mutedStyle.Render(r.Status)))
	}
	summary := make([]string, 0, len(kinds))
	for _, k := range kinds {
		summary = append(summary, fmt.Sprintf("%d %s", counts[k], k))
	}
	return append(out, mutedStyle.Render(strings.Join(summary, ", ")))
}

func pipelineLines(v *confirm.PipelineCreateView) []string {
	out := []string{"name: " + v.Name()}
	if v.Context.Source != "" || v.Context.Destination != "" {
		out = append(out, mutedStyle.Render(v.Context.Source+" -> "+v.Context.Destination))
	}
	if j := v.Join(); j.Enabled {
		out = append(out, fmt.Sprintf("join: %s.%s = %s.%s", j.LeftTable, j.LeftKey, j.RightTable, j.RightKey))
	}
	return out
}

func oauthLines(v *confirm.OAuthView) []string {
	if v.Connected() {
		return []string{okStyle.Render(v.Context.Provider + " connected")}
	}
	switch v.State() {
	case oauth.StatePopupOpened, oauth.StateAwaitingAuthURL:
		return []string{mutedStyle.Render("opening browser...")}
	case oauth.StateRedirected:
		return []string{mutedStyle.Render("finish signing in in your browser")}
	case oauth.StateFailed:
		msg := "connection failed"
		if err := v.Err(); err != nil {
			msg += ": " + err.Error()
		}
		return []string{errStyle.Render(msg)}
	case oauth.StateCancelled:
		return []string{mutedStyle.Render("cancelled")}
	}
	return nil
}

func hint(v confirm.View) string {
	switch t := v.(type) {
	case *confirm.SourceSelectView, *confirm.DestinationView:
		return "select <n>, confirm, cancel"
	case *confirm.CredentialsView:
		return "select <n>, user <name>, password, reveal, confirm, cancel"
	case *confirm.TableSelectView:
		return "toggle <n>, all, confirm, cancel"
	case *confirm.SchemaPreviewView, *confirm.TopicRegistryView:
		return "raw, copy, confirm, cancel"
	case *confirm.PipelineCreateView:
		return "name <name>, join <left> <right> <leftKey> <rightKey>, join off, confirm, cancel"
	case *confirm.AlertConfigView:
		return "toggle <n>, email <address>, confirm, cancel"
	case *confirm.LinkView:
		return "open, cancel"
	case *confirm.OAuthView:
		if t.State() == oauth.StateFailed {
			return "retry, cancel"
		}
		return "connect, cancel"
	}
	return "confirm, cancel"
}

// RenderError formats an error for the prompt line. Usage mistakes and
// rejected input read as a correction; other failures name their category.
func RenderError(err error) string {
	var pe *perrors.Error
	if !errors.As(err, &pe) || pe.Type == perrors.ErrorTypeValidation {
		return errStyle.Render("✗ " + err.Error())
	}
	return errStyle.Render(fmt.Sprintf("error (%s): %s", pe.Type, err.Error()))
}
