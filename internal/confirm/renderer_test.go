package confirm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rohankatakam/pipepilot/internal/directive"
	"github.com/rohankatakam/pipepilot/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(sender Sender) (*Renderer, *[]directive.Directive) {
	var completed []directive.Directive
	r := NewRenderer(RendererConfig{
		Dispatcher: NewDispatcher(sender),
		Navigator:  &fakeNavigator{},
		OnComplete: func(d directive.Directive, _ Decision) { completed = append(completed, d) },
	})
	return r, &completed
}

func TestRenderer_MountIsIdempotent(t *testing.T) {
	r, _ := newTestRenderer(&fakeSender{})
	d := tablesDirective()

	v1, fresh := r.Mount(d)
	require.True(t, fresh)
	v2, fresh := r.Mount(d)
	assert.False(t, fresh)
	assert.Same(t, v1.(*TableSelectView), v2.(*TableSelectView))
	assert.Len(t, r.Mounted(), 1)
}

func TestRenderer_PicksTypedViews(t *testing.T) {
	r, _ := newTestRenderer(&fakeSender{})

	tests := []struct {
		category directive.Category
		data     map[string]any
		check    func(View) bool
	}{
		{directive.CategorySourceSelect, nil, func(v View) bool { _, ok := v.(*SourceSelectView); return ok }},
		{directive.CategoryCredentials, nil, func(v View) bool { _, ok := v.(*CredentialsView); return ok }},
		{directive.CategoryTableSelect, nil, func(v View) bool { _, ok := v.(*TableSelectView); return ok }},
		{directive.CategoryFilter, nil, func(v View) bool { _, ok := v.(*FilterView); return ok }},
		{directive.CategorySchemaPreview, nil, func(v View) bool { _, ok := v.(*SchemaPreviewView); return ok }},
		{directive.CategoryDestination, nil, func(v View) bool { _, ok := v.(*DestinationView); return ok }},
		{directive.CategoryCost, nil, func(v View) bool { _, ok := v.(*CostView); return ok }},
		{directive.CategoryAlertConfig, nil, func(v View) bool { _, ok := v.(*AlertConfigView); return ok }},
		{directive.CategoryTopicRegistry, nil, func(v View) bool { _, ok := v.(*TopicRegistryView); return ok }},
		{directive.CategoryResources, nil, func(v View) bool { _, ok := v.(*ResourcesView); return ok }},
		{directive.CategoryPipelineCreate, nil, func(v View) bool { _, ok := v.(*PipelineCreateView); return ok }},
		{directive.CategoryReprocess, nil, func(v View) bool { _, ok := v.(*ReprocessView); return ok }},
		{directive.CategoryLink, map[string]any{"url": "https://x"}, func(v View) bool { _, ok := v.(*LinkView); return ok }},
		{directive.CategoryGenericAction, nil, func(v View) bool { _, ok := v.(*GenericView); return ok }},
		// no OAuth deps configured, so it falls back
		{directive.CategoryOAuth, map[string]any{"provider": "hubspot"}, func(v View) bool { _, ok := v.(*GenericView); return ok }},
		{directive.Category("mystery"), nil, func(v View) bool { _, ok := v.(*GenericView); return ok }},
	}

	for i, tt := range tests {
		d := testDirective(string(tt.category)+"#"+string(rune('a'+i)), tt.category, tt.data)
		v, fresh := r.Mount(d)
		require.True(t, fresh, tt.category)
		assert.True(t, tt.check(v), "category %s mounted %T", tt.category, v)
	}
}

func TestRenderer_UndecodableContextFallsBack(t *testing.T) {
	r, _ := newTestRenderer(&fakeSender{})
	d := testDirective("t#0", directive.CategoryTableSelect, map[string]any{"tables": "not a list"})

	v, fresh := r.Mount(d)

	require.True(t, fresh)
	_, ok := v.(*GenericView)
	assert.True(t, ok)
}

func TestRenderer_EndToEndTableSelection(t *testing.T) {
	sender := &fakeSender{}
	r, completed := newTestRenderer(sender)

	_, found := directive.ExtractTurn(directive.ChatTurn{
		ID:   "turn-3",
		Role: directive.RoleAssistant,
		Content: `Found 4 tables. <action type="table_select">{"sessionId":"sess-9","tables":[` +
			`{"name":"orders","eligible":true},{"name":"customers","eligible":true},` +
			`{"name":"tmp","eligible":false},{"name":"payments","eligible":true}]}</action>`,
	})
	require.Len(t, found, 1)

	v, fresh := r.Mount(found[0])
	require.True(t, fresh)
	tv := v.(*TableSelectView)

	tv.ToggleAllEligible()
	require.NoError(t, tv.Confirm(context.Background()))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	env := msgs[0].Confirmation
	assert.Equal(t, []string{"orders", "customers", "payments"}, env["selected_tables"])
	assert.Equal(t, true, env["confirmed"])
	assert.Equal(t, "tableSelect", env["action_type"])
	assert.Equal(t, "sess-9", env["sessionId"])

	assert.Equal(t, directive.StatusCompleted, r.dispatcher.Status(found[0].ID))
	assert.Empty(t, r.Mounted())
	require.Len(t, *completed, 1)

	again, fresh := r.Mount(found[0])
	assert.Nil(t, again, "completed directives never render again")
	assert.False(t, fresh)

	assert.ErrorIs(t, tv.Confirm(context.Background()), ErrAlreadySubmitted)
	assert.Len(t, sender.messages(), 1)
}

func TestRenderer_CancelSendsOneEnvelope(t *testing.T) {
	sender := &fakeSender{}
	r, _ := newTestRenderer(sender)
	d := testDirective("t#0", directive.CategoryCost, map[string]any{"sessionId": "s-2", "monthlyEstimate": 40})

	v, _ := r.Mount(d)
	require.NoError(t, v.Cancel(context.Background()))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, true, msgs[0].Confirmation["cancelled"])
	assert.Equal(t, "s-2", msgs[0].Confirmation["sessionId"])
	assert.Empty(t, r.Mounted())
}

func TestRenderer_SendFailureKeepsViewMounted(t *testing.T) {
	sender := &fakeSender{err: errors.New("disconnected")}
	r, completed := newTestRenderer(sender)
	d := testDirective("t#0", directive.CategoryReprocess, nil)

	v, _ := r.Mount(d)
	require.Error(t, v.Confirm(context.Background()))

	assert.Len(t, r.Mounted(), 1)
	assert.False(t, v.Done())
	assert.Empty(t, *completed)
	assert.Equal(t, directive.StatusPending, r.dispatcher.Status(d.ID))
}

func TestRenderer_LinkCompletesWithoutEnvelope(t *testing.T) {
	sender := &fakeSender{}
	r, completed := newTestRenderer(sender)
	d := testDirective("t#legacy-0", directive.CategoryLink, map[string]any{"url": "https://docs.example.com"})
	d.Source = directive.SourceLegacy

	v, _ := r.Mount(d)
	require.NoError(t, v.Confirm(context.Background()))

	assert.Empty(t, sender.messages())
	assert.Equal(t, directive.StatusCompleted, r.dispatcher.Status(d.ID))
	assert.Len(t, *completed, 1)
}

type stubOpener struct {
	blocked bool
	windows []*stubWindow
}

type stubWindow struct {
	id         string
	redirected string
	closed     bool
}

func (w *stubWindow) ID() string { return w.id }

func (w *stubWindow) Redirect(url string) error {
	w.redirected = url
	return nil
}

func (w *stubWindow) Close() error {
	w.closed = true
	return nil
}

func (o *stubOpener) Open(context.Context) (oauth.Window, error) {
	if o.blocked {
		return nil, nil
	}
	w := &stubWindow{id: fmt.Sprintf("win-%d", len(o.windows)+1)}
	o.windows = append(o.windows, w)
	return w, nil
}

type stubRequester struct{ calls int }

func (r *stubRequester) RequestAuthURL(context.Context, string, string, string) (string, error) {
	r.calls++
	return "https://consent.example.com", nil
}

func TestRenderer_OAuthFlow(t *testing.T) {
	sender := &fakeSender{}
	bus := oauth.NewCallbackBus()
	providers := oauth.NewProviderSet()
	opener := &stubOpener{}
	req := &stubRequester{}

	r := NewRenderer(RendererConfig{
		Dispatcher: NewDispatcher(sender),
		OAuth: &OAuthDeps{
			Opener: opener, Requester: req, Providers: providers, Bus: bus, UserID: "u-1",
		},
	})

	d := testDirective("t#legacy-0", directive.CategoryOAuth, map[string]any{"sessionId": "s", "provider": "google-ads"})
	v, _ := r.Mount(d)
	ov, ok := v.(*OAuthView)
	require.True(t, ok)
	assert.Equal(t, 1, bus.Listeners())

	require.NoError(t, ov.Confirm(context.Background()))
	assert.Equal(t, oauth.StateRedirected, ov.State())
	assert.Empty(t, sender.messages(), "nothing is sent before the provider reports back")

	done := oauth.CallbackEvent{Type: oauth.EventTypeCallback, Success: true, Provider: "google-ads", State: ov.AttemptID()}
	bus.Publish(done)
	bus.Publish(done)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "google-ads", msgs[0].Confirmation["provider"], "context keeps the agent's spelling")
	assert.Equal(t, "google_ads", msgs[0].Confirmation["connected_provider"])
	assert.Equal(t, true, msgs[0].Confirmation["connected"])
	assert.Equal(t, []string{"google_ads"}, providers.Snapshot())
	assert.Empty(t, r.Mounted())
	assert.Equal(t, 0, bus.Listeners(), "listener removed on unmount")
}

func TestRenderer_OAuthCallbackCompletesOnlyItsAttempt(t *testing.T) {
	sender := &fakeSender{}
	bus := oauth.NewCallbackBus()
	providers := oauth.NewProviderSet()

	r := NewRenderer(RendererConfig{
		Dispatcher: NewDispatcher(sender),
		OAuth: &OAuthDeps{
			Opener: &stubOpener{}, Requester: &stubRequester{}, Providers: providers, Bus: bus, UserID: "u-1",
		},
	})

	mount := func(id, provider string) *OAuthView {
		v, _ := r.Mount(testDirective(id, directive.CategoryOAuth, map[string]any{"sessionId": "s", "provider": provider}))
		ov := v.(*OAuthView)
		require.NoError(t, ov.Confirm(context.Background()))
		return ov
	}
	ads := mount("t#legacy-0", "google-ads")
	hub := mount("t#legacy-1", "hubspot")

	bus.Publish(oauth.CallbackEvent{Type: oauth.EventTypeCallback, Success: true})

	assert.Empty(t, providers.Snapshot())
	assert.Empty(t, sender.messages())
	assert.Len(t, r.Mounted(), 2)

	bus.Publish(oauth.CallbackEvent{Type: oauth.EventTypeCallback, Success: true, State: ads.AttemptID()})

	assert.Equal(t, []string{"google_ads"}, providers.Snapshot())
	require.Len(t, sender.messages(), 1)
	assert.Equal(t, "google_ads", sender.messages()[0].Confirmation["connected_provider"])
	assert.Equal(t, oauth.StateRedirected, hub.State())
	assert.Len(t, r.Mounted(), 1)
}

func TestRenderer_OAuthPopupBlocked(t *testing.T) {
	sender := &fakeSender{}
	bus := oauth.NewCallbackBus()
	opener := &stubOpener{blocked: true}
	req := &stubRequester{}

	r := NewRenderer(RendererConfig{
		Dispatcher: NewDispatcher(sender),
		OAuth:      &OAuthDeps{Opener: opener, Requester: req, Bus: bus},
	})
	v, _ := r.Mount(testDirective("t#legacy-0", directive.CategoryOAuth, map[string]any{"provider": "hubspot"}))
	ov := v.(*OAuthView)

	err := ov.Confirm(context.Background())

	assert.ErrorIs(t, err, oauth.ErrPopupBlocked)
	assert.Equal(t, 0, req.calls)
	assert.Equal(t, oauth.StateFailed, ov.State())
	assert.Empty(t, sender.messages())
	assert.Len(t, r.Mounted(), 1, "view stays up for a retry")

	opener.blocked = false
	require.NoError(t, ov.Retry(context.Background()))
	assert.Equal(t, oauth.StateRedirected, ov.State())
	assert.Equal(t, 1, req.calls)
}
