package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw      string
		expected Category
	}{
		{"tableSelect", CategoryTableSelect},
		{"table_select", CategoryTableSelect},
		{"TABLE-SELECT", CategoryTableSelect},
		{"select_tables", CategoryTableSelect},
		{"schema_approval", CategorySchemaPreview},
		{"show_schema", CategorySchemaPreview},
		{"SchemaPreview", CategorySchemaPreview},
		{"password_prompt", CategoryCredentials},
		{"  credentials ", CategoryCredentials},
		{"filter_suggestion", CategoryFilter},
		{"cost_estimate", CategoryCost},
		{"configure_alerts", CategoryAlertConfig},
		{"register_topic", CategoryTopicRegistry},
		{"resource_summary", CategoryResources},
		{"create_pipeline", CategoryPipelineCreate},
		{"select_destination", CategoryDestination},
		{"select_source", CategorySourceSelect},
		{"reprocess", CategoryReprocess},
		{"oauth_connect", CategoryOAuth},
		{"open_link", CategoryLink},
		{"", CategoryGenericAction},
		{"launch_rockets", CategoryGenericAction},
		{"<script>", CategoryGenericAction},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Normalize(tt.raw), "raw type %q", tt.raw)
	}
}

func TestNormalize_CanonicalNamesMapToThemselves(t *testing.T) {
	for _, c := range Categories() {
		assert.Equal(t, c, Normalize(string(c)))
	}
}

func TestNormalize_AliasTableIsClosed(t *testing.T) {
	known := make(map[Category]bool)
	for _, c := range Categories() {
		known[c] = true
	}
	for alias, c := range aliases {
		assert.True(t, known[c], "alias %q maps outside the closed set", alias)
		assert.Equal(t, fold(alias), alias, "alias %q must be stored folded", alias)
	}
}

func TestCategory_IsLegacyOnly(t *testing.T) {
	assert.True(t, CategoryReprocess.IsLegacyOnly())
	assert.True(t, CategoryOAuth.IsLegacyOnly())
	assert.True(t, CategoryLink.IsLegacyOnly())
	assert.False(t, CategoryTableSelect.IsLegacyOnly())
	assert.False(t, CategoryGenericAction.IsLegacyOnly())
}
