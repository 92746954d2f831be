package directive

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_NoMarkers(t *testing.T) {
	inputs := []string{
		"",
		"Connecting to your Postgres source now.",
		"Use a < b comparisons freely <tag> and <actionable> words",
		"Multi\nline\n\ttext with ünïcödé",
	}

	for _, in := range inputs {
		narrative, found := Extract(in)
		assert.Equal(t, in, narrative)
		assert.Empty(t, found)
	}
}

func TestExtract_SingleMarker(t *testing.T) {
	text := `Here are your tables.
<action type="tableSelect">{"sessionId":"s-1","tables":[{"name":"orders","eligible":true}]}</action>
Pick the ones to replicate.`

	narrative, found := Extract(text)

	assert.Equal(t, "Here are your tables.\n\nPick the ones to replicate.", narrative)
	require.Len(t, found, 1)
	assert.Equal(t, "tableSelect", found[0].RawType)
	assert.Equal(t, CategoryTableSelect, found[0].Category)
	assert.Equal(t, "s-1", found[0].Data["sessionId"])
	assert.Equal(t, SourceEmbedded, found[0].Source)
}

func TestExtract_PreservesOrderAndSurroundingBytes(t *testing.T) {
	text := "A<action type='filter'>{\"n\":1}</action>B<ACTION TYPE=schema_approval>{}</ACTION>C"

	narrative, found := Extract(text)

	assert.Equal(t, "ABC", narrative)
	require.Len(t, found, 2)
	assert.Equal(t, CategoryFilter, found[0].Category)
	assert.Equal(t, 0, found[0].Index)
	assert.Equal(t, CategorySchemaPreview, found[1].Category)
	assert.Equal(t, 1, found[1].Index)
	assert.Empty(t, found[1].Data)
}

func TestExtract_MalformedMarkersStayInNarrative(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unterminated", `before <action type="cost">{"a":1} after`},
		{"missing type", `x <action kind="cost">{}</action> y`},
		{"empty type", `x <action type="">{}</action> y`},
		{"no attributes", `x <action>{}</action> y`},
		{"body not object", `x <action type="cost">[1,2]</action> y`},
		{"bad json", `x <action type="cost">{"a":</action> y`},
		{"trailing garbage", `x <action type="cost">{} {}</action> y`},
		{"unclosed tag", `x <action type="cost"`},
		{"unterminated quote", `x <action type="cost>{}</action> y`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			narrative, found := Extract(tt.text)
			assert.Equal(t, tt.text, narrative)
			assert.Empty(t, found)
		})
	}
}

func TestExtract_MalformedThenWellFormed(t *testing.T) {
	text := `one <action>oops</action> two <action type="cost">{"total":5}</action> three`

	narrative, found := Extract(text)

	assert.Equal(t, `one <action>oops</action> two  three`, narrative)
	require.Len(t, found, 1)
	assert.Equal(t, CategoryCost, found[0].Category)
}

func TestExtract_NoMarkerSyntaxRemains(t *testing.T) {
	text := `Step 1 <action type="sourceSelect">{"sources":[]}</action>` +
		` Step 2 <action type="credentials">{"host":"db"}</action>` +
		` Step 3 <action type="destination">{}</action> done`

	narrative, found := Extract(text)

	assert.Len(t, found, 3)
	assert.NotContains(t, strings.ToLower(narrative), "<action")
	assert.NotContains(t, strings.ToLower(narrative), "</action>")
	assert.Equal(t, "Step 1  Step 2  Step 3  done", narrative)
}

func TestExtract_NumbersRoundTripUnchanged(t *testing.T) {
	text := `<action type="cost">{"sessionId":90071992547409931234,"monthlyEstimate":12.50}</action>`

	_, found := Extract(text)
	require.Len(t, found, 1)

	out, err := json.Marshal(found[0].Data["sessionId"])
	require.NoError(t, err)
	assert.Equal(t, "90071992547409931234", string(out))
}

func TestExtractTurn_AssignsIdentities(t *testing.T) {
	turn := ChatTurn{
		ID:      "turn-7",
		Role:    RoleAssistant,
		Content: `a <action type="cost">{}</action> b <action type="resources">{}</action>`,
	}

	_, found := ExtractTurn(turn)

	require.Len(t, found, 2)
	assert.Equal(t, "turn-7#0", found[0].ID)
	assert.Equal(t, "turn-7#1", found[1].ID)
	assert.Equal(t, "turn-7", found[1].TurnID)
}

func TestExtractTurn_UserTurnsAreNarrativeOnly(t *testing.T) {
	turn := ChatTurn{ID: "u1", Role: RoleUser, Content: `<action type="cost">{}</action>`}

	narrative, found := ExtractTurn(turn)

	assert.Equal(t, turn.Content, narrative)
	assert.Empty(t, found)
}

func TestFromLegacy(t *testing.T) {
	turn := ChatTurn{
		ID:   "turn-9",
		Role: RoleAssistant,
		LegacyActions: []LegacyAction{
			{Type: "reprocess", Data: map[string]any{"sessionId": "s"}},
			{Type: "oauth_connect"},
		},
	}

	found := FromLegacy(turn)

	require.Len(t, found, 2)
	assert.Equal(t, "turn-9#legacy-0", found[0].ID)
	assert.Equal(t, CategoryReprocess, found[0].Category)
	assert.Equal(t, SourceLegacy, found[0].Source)
	assert.Equal(t, CategoryOAuth, found[1].Category)
	assert.NotNil(t, found[1].Data)
}

func TestDirective_SessionID(t *testing.T) {
	d := Directive{Data: map[string]any{"session_id": "legacy"}}
	v, ok := d.SessionID()
	assert.True(t, ok)
	assert.Equal(t, "legacy", v)

	d = Directive{Data: map[string]any{"sessionId": "new", "session_id": "old"}}
	v, _ = d.SessionID()
	assert.Equal(t, "new", v)

	_, ok = Directive{}.SessionID()
	assert.False(t, ok)
}
