package confirm

import (
	"context"
	"errors"
	"testing"

	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures what a view hands to its callbacks
type recorder struct {
	confirms  []map[string]any
	cancels   int
	dismisses int
	err       error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnConfirm: func(_ context.Context, fields map[string]any) error {
			if r.err != nil {
				return r.err
			}
			r.confirms = append(r.confirms, fields)
			return nil
		},
		OnCancel: func(context.Context) error {
			if r.err != nil {
				return r.err
			}
			r.cancels++
			return nil
		},
		OnDismiss: func() error {
			r.dismisses++
			return nil
		},
	}
}

func tablesDirective() directive.Directive {
	return testDirective("t#0", directive.CategoryTableSelect, map[string]any{
		"sessionId": "s-1",
		"tables": []any{
			map[string]any{"name": "orders", "eligible": true, "rowCount": "1200"},
			map[string]any{"name": "customers", "eligible": true},
			map[string]any{"name": "audit_log", "eligible": false, "reason": "no primary key"},
			map[string]any{"name": "payments", "eligible": true},
		},
	})
}

func TestTableSelectView_ToggleAllEligible(t *testing.T) {
	rec := &recorder{}
	v, err := newTableSelectView(tablesDirective(), rec.callbacks())
	require.NoError(t, err)
	assert.EqualValues(t, 1200, v.Context.Tables[0].RowCount)

	v.ToggleAllEligible()
	assert.Equal(t, []string{"orders", "customers", "payments"}, v.Selected())
	assert.True(t, v.AllEligibleSelected())
	assert.False(t, v.IsSelected("audit_log"))

	v.ToggleAllEligible()
	assert.Empty(t, v.Selected())

	v.ToggleAllEligible()
	require.NoError(t, v.Confirm(context.Background()))
	require.Len(t, rec.confirms, 1)
	assert.Equal(t, []string{"orders", "customers", "payments"}, rec.confirms[0]["selected_tables"])
	assert.True(t, v.Done())
}

func TestTableSelectView_Toggle(t *testing.T) {
	v, err := newTableSelectView(tablesDirective(), Callbacks{})
	require.NoError(t, err)

	assert.ErrorIs(t, v.Toggle("audit_log"), ErrIneligible)
	assert.ErrorIs(t, v.Toggle("nope"), ErrUnknownOption)

	require.NoError(t, v.Toggle("2"))
	require.NoError(t, v.Toggle("ORDERS"))
	assert.Equal(t, []string{"orders", "customers"}, v.Selected())

	require.NoError(t, v.Toggle("customers"))
	assert.Equal(t, []string{"orders"}, v.Selected())
}

func TestTableSelectView_RequiresOneTable(t *testing.T) {
	rec := &recorder{}
	v, err := newTableSelectView(tablesDirective(), rec.callbacks())
	require.NoError(t, err)

	err = v.Confirm(context.Background())

	require.Error(t, err)
	assert.Equal(t, "selected_tables", perrors.Field(err))
	assert.Empty(t, rec.confirms)
	assert.False(t, v.Done())
}

func TestTableSelectView_NothingEligible(t *testing.T) {
	d := testDirective("t#0", directive.CategoryTableSelect, map[string]any{
		"tables": []any{map[string]any{"name": "a"}},
	})
	v, err := newTableSelectView(d, Callbacks{})
	require.NoError(t, err)

	v.ToggleAllEligible()
	assert.Empty(t, v.Selected())
	assert.False(t, v.AllEligibleSelected())
}

func TestReductionPercent(t *testing.T) {
	tests := []struct {
		original, filtered float64
		want               int
	}{
		{1000, 150, 85},
		{0, 0, 0},
		{0, 50, 0},
		{-10, 5, 0},
		{100, 100, 0},
		{100, 0, 100},
		{100, 150, 0},
		{100, -20, 100},
		{3, 2, 33},
		{3, 1, 67},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReductionPercent(tt.original, tt.filtered),
			"original=%v filtered=%v", tt.original, tt.filtered)
	}
}

func TestFilterView(t *testing.T) {
	rec := &recorder{}
	d := testDirective("t#0", directive.CategoryFilter, map[string]any{
		"table":            "events",
		"originalRowCount": 1000,
		"filteredRowCount": 150,
	})
	v, err := newFilterView(d, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, 85, v.Reduction())
	require.NoError(t, v.Confirm(context.Background()))
	assert.Equal(t, map[string]any{"apply_filter": true}, rec.confirms[0])

	missing, err := newFilterView(testDirective("t#1", directive.CategoryFilter, map[string]any{}), Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 0, missing.Reduction())
}

type memClipboard struct{ text string }

func (c *memClipboard) WriteAll(text string) error {
	c.text = text
	return nil
}

func TestSchemaPreviewView_RawPayload(t *testing.T) {
	raw := `{"type":"record","name":"Order","fields":[{"name":"id","type":"long"}]}`
	data := map[string]any{"sessionId": "s", "schema": raw}
	v, err := newSchemaPreviewView(testDirective("t#0", directive.CategorySchemaPreview, data), Callbacks{})
	require.NoError(t, err)

	got, err := v.RawPayload()
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	cb := &memClipboard{}
	require.NoError(t, v.Copy(cb))
	assert.Equal(t, raw, cb.text)
	assert.Equal(t, raw, data["schema"], "copy leaves the payload untouched")
}

func TestSchemaPreviewView_StructuredSchema(t *testing.T) {
	data := map[string]any{"schema": map[string]any{"type": "record"}}
	v, err := newSchemaPreviewView(testDirective("t#0", directive.CategorySchemaPreview, data), Callbacks{})
	require.NoError(t, err)

	got, err := v.RawPayload()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"record"}`, got)
}

func TestCredentialsView(t *testing.T) {
	d := testDirective("t#0", directive.CategoryCredentials, map[string]any{
		"sourceType": "postgres",
		"port":       "5432",
		"username":   "etl",
		"savedCredentials": []any{
			map[string]any{"id": "cred-1", "name": "prod read replica"},
		},
	})

	t.Run("typed password is masked", func(t *testing.T) {
		rec := &recorder{}
		v, err := newCredentialsView(d, rec.callbacks())
		require.NoError(t, err)
		assert.Equal(t, 5432, v.Context.Port)
		assert.Equal(t, "Credentials for postgres", v.Title())

		err = v.Confirm(context.Background())
		assert.Equal(t, "password", perrors.Field(err))

		v.SetPassword("hunter2")
		assert.Equal(t, "•••••••", v.DisplayPassword())
		v.ToggleReveal()
		assert.Equal(t, "hunter2", v.DisplayPassword())

		require.NoError(t, v.Confirm(context.Background()))
		assert.Equal(t, map[string]any{"username": "etl", "password": "hunter2"}, rec.confirms[0])
	})

	t.Run("saved credential wins", func(t *testing.T) {
		rec := &recorder{}
		v, err := newCredentialsView(d, rec.callbacks())
		require.NoError(t, err)

		require.NoError(t, v.UseSaved("prod read replica"))
		v.SetPassword("ignored")
		require.NoError(t, v.Confirm(context.Background()))
		assert.Equal(t, map[string]any{"credential_id": "cred-1"}, rec.confirms[0])
	})
}

func TestSourceAndDestinationViews(t *testing.T) {
	rec := &recorder{}
	src, err := newSourceSelectView(testDirective("t#0", directive.CategorySourceSelect, map[string]any{
		"sources": []any{
			map[string]any{"id": "pg", "name": "Postgres"},
			map[string]any{"id": "my", "name": "MySQL"},
		},
	}), rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, "source_id", perrors.Field(src.Confirm(context.Background())))
	require.NoError(t, src.Choose("mysql"))
	require.NoError(t, src.Confirm(context.Background()))
	assert.Equal(t, map[string]any{"source_id": "my"}, rec.confirms[0])

	dst, err := newDestinationView(testDirective("t#1", directive.CategoryDestination, map[string]any{
		"destinations": []any{
			map[string]any{"id": "bq", "name": "BigQuery"},
			map[string]any{"id": "sf", "name": "Snowflake"},
		},
		"recommended": "sf",
	}), rec.callbacks())
	require.NoError(t, err)

	chosen, ok := dst.Selected()
	require.True(t, ok)
	assert.Equal(t, "sf", chosen.ID)
	require.NoError(t, dst.Choose("1"))
	require.NoError(t, dst.Confirm(context.Background()))
	assert.Equal(t, map[string]any{"destination_id": "bq"}, rec.confirms[1])
}

func TestPipelineCreateView(t *testing.T) {
	rec := &recorder{}
	v, err := newPipelineCreateView(testDirective("t#0", directive.CategoryPipelineCreate, map[string]any{
		"suggestedName": "orders-to-bq",
		"join":          map[string]any{"enabled": true, "leftTable": "orders", "rightTable": "customers"},
	}), rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, "orders-to-bq", v.Name())

	assert.Equal(t, "join_config", perrors.Field(v.Confirm(context.Background())))

	v.SetJoin(JoinConfig{Enabled: true, LeftTable: "orders", RightTable: "customers", LeftKey: "customer_id", RightKey: "id"})
	v.SetName("-bad name")
	assert.Equal(t, "pipeline_name", perrors.Field(v.Confirm(context.Background())))

	v.SetName("orders_daily")
	require.NoError(t, v.Confirm(context.Background()))
	assert.Equal(t, "orders_daily", rec.confirms[0]["pipeline_name"])
	assert.Equal(t, "customer_id", rec.confirms[0]["join_config"].(map[string]any)["leftKey"])
}

func TestValidatePipelineName(t *testing.T) {
	valid := []string{"a", "orders-to-bq", "A1_b-2", "9lives"}
	for _, n := range valid {
		assert.NoError(t, ValidatePipelineName(n), n)
	}
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	invalid := []string{"", "_leading", "-leading", "has space", "ünicode", string(long)}
	for _, n := range invalid {
		assert.Error(t, ValidatePipelineName(n), n)
	}
	assert.NoError(t, ValidatePipelineName(string(long[:63])))
}

func TestAlertConfigView(t *testing.T) {
	rec := &recorder{}
	v, err := newAlertConfigView(testDirective("t#0", directive.CategoryAlertConfig, map[string]any{
		"rules": []any{
			map[string]any{"id": "lag", "metric": "consumer_lag", "condition": ">", "threshold": 1000},
			map[string]any{"id": "err", "metric": "error_rate", "condition": ">", "threshold": 0.05},
		},
	}), rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, []string{"lag", "err"}, v.EnabledRules())

	require.NoError(t, v.ToggleRule("error_rate"))
	assert.False(t, v.RuleEnabled("err"))

	v.SetEmail("not-an-email")
	assert.Equal(t, "alert_email", perrors.Field(v.Confirm(context.Background())))

	v.SetEmail("oncall@example.com")
	require.NoError(t, v.Confirm(context.Background()))
	assert.Equal(t, map[string]any{
		"enabled_rules": []string{"lag"},
		"alert_email":   "oncall@example.com",
	}, rec.confirms[0])
}

func TestCostView_Total(t *testing.T) {
	v, err := newCostView(testDirective("t#0", directive.CategoryCost, map[string]any{
		"breakdown": []any{
			map[string]any{"item": "compute", "amount": 10.5},
			map[string]any{"item": "storage", "amount": "2"},
		},
	}), Callbacks{})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v.Total(), 0.0001)
	assert.Equal(t, "12.50 USD/month", v.FormattedTotal())
}

func TestBase_OneDecisionOnly(t *testing.T) {
	rec := &recorder{}
	v := newGenericView(testDirective("t#0", directive.CategoryGenericAction, map[string]any{"label": "Restart"}), rec.callbacks())
	assert.Equal(t, "Restart", v.Title())

	require.NoError(t, v.Confirm(context.Background()))
	assert.ErrorIs(t, v.Confirm(context.Background()), ErrAlreadySubmitted)
	assert.ErrorIs(t, v.Cancel(context.Background()), ErrAlreadySubmitted)
	assert.Len(t, rec.confirms, 1)
	assert.Zero(t, rec.cancels)
}

func TestBase_FailedDecisionLeavesViewOpen(t *testing.T) {
	rec := &recorder{err: errors.New("offline")}
	v, err := newReprocessView(testDirective("t#0", directive.CategoryReprocess, nil), rec.callbacks())
	require.NoError(t, err)

	require.Error(t, v.Confirm(context.Background()))
	assert.False(t, v.Done())
	assert.False(t, v.Submitting())

	rec.err = nil
	require.NoError(t, v.Cancel(context.Background()))
	assert.True(t, v.Done())
	assert.Equal(t, 1, rec.cancels)
}

type fakeNavigator struct{ opened []string }

func (n *fakeNavigator) OpenURL(u string) error {
	n.opened = append(n.opened, u)
	return nil
}

func TestLinkView(t *testing.T) {
	rec := &recorder{}
	nav := &fakeNavigator{}
	v, err := newLinkView(testDirective("t#legacy-0", directive.CategoryLink, map[string]any{
		"url": "https://app.example.com/pipelines/7",
	}), rec.callbacks(), nav)
	require.NoError(t, err)

	require.NoError(t, v.Confirm(context.Background()))
	assert.Equal(t, []string{"https://app.example.com/pipelines/7"}, nav.opened)
	assert.Equal(t, 1, rec.dismisses)
	assert.Empty(t, rec.confirms)

	bad, err := newLinkView(testDirective("t#legacy-1", directive.CategoryLink, map[string]any{
		"url": "file:///etc/passwd",
	}), rec.callbacks(), nav)
	require.NoError(t, err)
	err = bad.Confirm(context.Background())
	assert.Equal(t, perrors.ErrorTypeSecurity, perrors.GetType(err))
	assert.Len(t, nav.opened, 1)
}
