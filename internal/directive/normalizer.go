package directive

import (
	"strings"
	"unicode"
)

// Category is the closed set of render categories the confirmation
// renderer understands
type Category string

const (
	CategorySourceSelect   Category = "sourceSelect"
	CategoryCredentials    Category = "credentials"
	CategoryTableSelect    Category = "tableSelect"
	CategoryFilter         Category = "filter"
	CategorySchemaPreview  Category = "schemaPreview"
	CategoryDestination    Category = "destination"
	CategoryCost           Category = "cost"
	CategoryAlertConfig    Category = "alertConfig"
	CategoryTopicRegistry  Category = "topicRegistry"
	CategoryResources      Category = "resources"
	CategoryPipelineCreate Category = "pipelineCreate"
	CategoryReprocess      Category = "reprocess"
	CategoryGenericAction  Category = "genericAction"
	CategoryOAuth          Category = "oauth"
	CategoryLink           Category = "link"
)

// Categories lists every canonical category
func Categories() []Category {
	return []Category{
		CategorySourceSelect, CategoryCredentials, CategoryTableSelect,
		CategoryFilter, CategorySchemaPreview, CategoryDestination,
		CategoryCost, CategoryAlertConfig, CategoryTopicRegistry,
		CategoryResources, CategoryPipelineCreate, CategoryReprocess,
		CategoryGenericAction, CategoryOAuth, CategoryLink,
	}
}

// IsLegacyOnly reports categories that only arrive as attached objects
func (c Category) IsLegacyOnly() bool {
	switch c {
	case CategoryReprocess, CategoryOAuth, CategoryLink:
		return true
	}
	return false
}

// aliases is keyed by the folded form of a raw type (see fold). Retired
// spellings still emitted by older backend sessions live here and nowhere
// else.
var aliases = map[string]Category{
	// source selection
	"sourceselect":    CategorySourceSelect,
	"selectsource":    CategorySourceSelect,
	"sourceselection": CategorySourceSelect,
	"choosesource":    CategorySourceSelect,

	// credentials
	"credentials":      CategoryCredentials,
	"credential":       CategoryCredentials,
	"credentialinput":  CategoryCredentials,
	"credentialselect": CategoryCredentials,
	"passwordprompt":   CategoryCredentials,
	"connectsource":    CategoryCredentials,

	// tables
	"tableselect":    CategoryTableSelect,
	"tableselection": CategoryTableSelect,
	"selecttables":   CategoryTableSelect,
	"selecttable":    CategoryTableSelect,

	// filter
	"filter":           CategoryFilter,
	"filtersuggestion": CategoryFilter,
	"applyfilter":      CategoryFilter,
	"suggestfilter":    CategoryFilter,

	// schema
	"schemapreview":  CategorySchemaPreview,
	"schemaapproval": CategorySchemaPreview,
	"showschema":     CategorySchemaPreview,
	"approveschema":  CategorySchemaPreview,

	// destination
	"destination":       CategoryDestination,
	"selectdestination": CategoryDestination,
	"destinationselect": CategoryDestination,

	// cost
	"cost":         CategoryCost,
	"costestimate": CategoryCost,
	"costapproval": CategoryCost,

	// alerts
	"alertconfig":     CategoryAlertConfig,
	"alertsetup":      CategoryAlertConfig,
	"configurealerts": CategoryAlertConfig,
	"alerts":          CategoryAlertConfig,

	// topics
	"topicregistry":  CategoryTopicRegistry,
	"registertopic":  CategoryTopicRegistry,
	"registertopics": CategoryTopicRegistry,
	"topicschema":    CategoryTopicRegistry,

	// resources
	"resources":       CategoryResources,
	"resourcesummary": CategoryResources,
	"resourcereview":  CategoryResources,

	// pipeline
	"pipelinecreate": CategoryPipelineCreate,
	"createpipeline": CategoryPipelineCreate,
	"namepipeline":   CategoryPipelineCreate,
	"pipelinename":   CategoryPipelineCreate,

	// legacy-only
	"reprocess":        CategoryReprocess,
	"reprocessrecords": CategoryReprocess,
	"oauth":            CategoryOAuth,
	"oauthconnect":     CategoryOAuth,
	"connectprovider":  CategoryOAuth,
	"link":             CategoryLink,
	"openlink":         CategoryLink,
	"navigate":         CategoryLink,

	"genericaction": CategoryGenericAction,
	"action":        CategoryGenericAction,
	"confirm":       CategoryGenericAction,
}

// Normalize maps a raw directive type to its canonical category. Case and
// separator differences are ignored; anything unrecognized is
// CategoryGenericAction.
func Normalize(rawType string) Category {
	if c, ok := aliases[fold(rawType)]; ok {
		return c
	}
	return CategoryGenericAction
}

// fold lower-cases and drops the separators the backend has used over time
func fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
