package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rohankatakam/pipepilot/internal/confirm"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/rohankatakam/pipepilot/internal/session"
)

var (
	ErrNoFocus     = errors.New("no confirmation is waiting")
	ErrUnsupported = errors.New("command does not apply to this confirmation")
	ErrQuit        = errors.New("quit")
)

// PasswordReader reads a secret without echoing it
type PasswordReader func() (string, error)

// Console turns typed commands into view operations on a session. It keeps
// a focus: the confirmation commands apply to, which defaults to the newest
// one still open.
type Console struct {
	sess      *session.Session
	out       io.Writer
	clipboard confirm.Clipboard
	password  PasswordReader

	mu    sync.Mutex
	refs  map[string]int
	next  int
	focus string
}

func NewConsole(sess *session.Session, out io.Writer, cb confirm.Clipboard, pw PasswordReader) *Console {
	return &Console{
		sess:      sess,
		out:       out,
		clipboard: cb,
		password:  pw,
		refs:      make(map[string]int),
	}
}

// ShowTurn prints a turn and moves focus to its last open confirmation
func (c *Console) ShowTurn(rt session.RenderedTurn) {
	for _, v := range rt.Views {
		c.ref(v)
	}
	if n := len(rt.Views); n > 0 {
		c.mu.Lock()
		c.focus = rt.Views[n-1].Directive().ID
		c.mu.Unlock()
	}
	fmt.Fprint(c.out, RenderTurn(rt, c.ref))
}

func (c *Console) ref(v confirm.View) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := v.Directive().ID
	if n, ok := c.refs[id]; ok {
		return n
	}
	c.next++
	c.refs[id] = c.next
	return c.next
}

// Focused returns the view commands currently apply to
func (c *Console) Focused() (confirm.View, bool) {
	c.mu.Lock()
	id := c.focus
	c.mu.Unlock()

	if id != "" {
		if v, ok := c.sess.Lookup(id); ok {
			return v, true
		}
	}
	pending := c.sess.Pending()
	if len(pending) == 0 {
		return nil, false
	}
	v := pending[len(pending)-1]
	c.mu.Lock()
	c.focus = v.Directive().ID
	c.mu.Unlock()
	return v, true
}

func (c *Console) byRef(n int) (confirm.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.refs {
		if r == n {
			return c.sess.Lookup(id)
		}
	}
	return nil, false
}

const usage = `commands:
  say <text>                 send a message to the agent
  list                       show open confirmations
  use <n>                    focus confirmation n
  show                       redraw the focused confirmation
  select <n|name>            choose a source, destination or saved credential
  toggle <n|name>            toggle a table or alert rule
  all                        select or clear every eligible table
  user <name>                set the username
  password                   enter the password (hidden)
  reveal                     show or hide the password
  name <name>                set the pipeline name
  join <l> <r> <lk> <rk>     join two tables; "join off" removes it
  email <address>            set the alert email
  raw                        print the raw schema or contract
  copy                       copy the raw schema or contract
  confirm | connect | open   accept the focused confirmation
  retry                      restart a failed account connection
  cancel                     decline the focused confirmation
  quit`

// Execute runs one command line. It returns ErrQuit when the user asks to
// leave.
func (c *Console) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "help", "?":
		fmt.Fprintln(c.out, usage)
		return nil
	case "quit", "exit":
		return ErrQuit
	case "list":
		return c.list()
	case "use":
		return c.use(arg)
	case "say":
		rt, err := c.sess.Say(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprint(c.out, RenderTurn(rt, c.ref))
		return nil
	}

	v, ok := c.Focused()
	if !ok {
		return ErrNoFocus
	}

	var err error
	switch strings.ToLower(cmd) {
	case "show":
	case "select":
		err = c.selectOption(v, arg)
	case "toggle":
		err = c.toggle(v, arg)
	case "all":
		err = c.all(v)
	case "user":
		err = c.user(v, arg)
	case "password":
		err = c.readPassword(v)
	case "reveal":
		err = c.reveal(v)
	case "name":
		err = c.name(v, arg)
	case "join":
		err = c.join(v, arg)
	case "email":
		err = c.email(v, arg)
	case "raw":
		return c.raw(v)
	case "copy":
		err = c.copy(v)
	case "confirm", "yes", "y", "connect", "open":
		err = v.Confirm(ctx)
	case "retry":
		err = c.retry(ctx, v)
	case "cancel", "no", "n":
		err = v.Cancel(ctx)
	default:
		return perrors.ValidationErrorf("unknown command %q, type help", cmd)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, RenderView(v, c.ref(v)))
	return nil
}

func (c *Console) list() error {
	pending := c.sess.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(c.out, mutedStyle.Render("nothing to confirm"))
		return nil
	}
	focused, _ := c.Focused()
	for _, v := range pending {
		prefix := "  "
		if focused != nil && focused.Directive().ID == v.Directive().ID {
			prefix = "> "
		}
		fmt.Fprintf(c.out, "%s[%d] %s\n", prefix, c.ref(v), v.Title())
	}
	return nil
}

func (c *Console) use(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return perrors.ValidationErrorf("use takes a number, got %q", arg)
	}
	v, ok := c.byRef(n)
	if !ok {
		return perrors.ValidationErrorf("no open confirmation [%d]", n)
	}
	c.mu.Lock()
	c.focus = v.Directive().ID
	c.mu.Unlock()
	fmt.Fprintln(c.out, RenderView(v, n))
	return nil
}

func (c *Console) selectOption(v confirm.View, arg string) error {
	switch t := v.(type) {
	case *confirm.SourceSelectView:
		return t.Choose(arg)
	case *confirm.DestinationView:
		return t.Choose(arg)
	case *confirm.CredentialsView:
		if arg == "" || strings.EqualFold(arg, "none") {
			t.ClearSaved()
			return nil
		}
		return t.UseSaved(arg)
	case *confirm.TableSelectView:
		return t.Toggle(arg)
	}
	return ErrUnsupported
}

func (c *Console) toggle(v confirm.View, arg string) error {
	switch t := v.(type) {
	case *confirm.TableSelectView:
		return t.Toggle(arg)
	case *confirm.AlertConfigView:
		return t.ToggleRule(arg)
	}
	return ErrUnsupported
}

func (c *Console) all(v confirm.View) error {
	t, ok := v.(*confirm.TableSelectView)
	if !ok {
		return ErrUnsupported
	}
	t.ToggleAllEligible()
	return nil
}

func (c *Console) user(v confirm.View, arg string) error {
	t, ok := v.(*confirm.CredentialsView)
	if !ok {
		return ErrUnsupported
	}
	t.SetUsername(arg)
	return nil
}

func (c *Console) readPassword(v confirm.View) error {
	t, ok := v.(*confirm.CredentialsView)
	if !ok {
		return ErrUnsupported
	}
	if c.password == nil {
		return perrors.ConfigError("no terminal to read a password from")
	}
	fmt.Fprint(c.out, "password: ")
	pw, err := c.password()
	fmt.Fprintln(c.out)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeInternal, perrors.SeverityMedium, "failed to read password")
	}
	t.SetPassword(pw)
	return nil
}

func (c *Console) reveal(v confirm.View) error {
	t, ok := v.(*confirm.CredentialsView)
	if !ok {
		return ErrUnsupported
	}
	t.ToggleReveal()
	return nil
}

func (c *Console) name(v confirm.View, arg string) error {
	t, ok := v.(*confirm.PipelineCreateView)
	if !ok {
		return ErrUnsupported
	}
	if err := confirm.ValidatePipelineName(arg); err != nil {
		return err
	}
	t.SetName(arg)
	return nil
}

func (c *Console) join(v confirm.View, arg string) error {
	t, ok := v.(*confirm.PipelineCreateView)
	if !ok {
		return ErrUnsupported
	}
	if strings.EqualFold(arg, "off") {
		t.SetJoin(confirm.JoinConfig{})
		return nil
	}
	parts := strings.Fields(arg)
	if len(parts) != 4 {
		return perrors.ValidationError("join takes <leftTable> <rightTable> <leftKey> <rightKey>")
	}
	t.SetJoin(confirm.JoinConfig{
		Enabled:    true,
		LeftTable:  parts[0],
		RightTable: parts[1],
		LeftKey:    parts[2],
		RightKey:   parts[3],
	})
	return nil
}

func (c *Console) email(v confirm.View, arg string) error {
	t, ok := v.(*confirm.AlertConfigView)
	if !ok {
		return ErrUnsupported
	}
	t.SetEmail(arg)
	return nil
}

type rawSource interface {
	RawPayload() (string, error)
	Copy(confirm.Clipboard) error
}

func (c *Console) raw(v confirm.View) error {
	t, ok := v.(rawSource)
	if !ok {
		return ErrUnsupported
	}
	raw, err := t.RawPayload()
	if err != nil {
		return err
	}
	if raw == "" {
		fmt.Fprintln(c.out, mutedStyle.Render("(no raw payload)"))
		return nil
	}
	fmt.Fprintln(c.out, raw)
	return nil
}

func (c *Console) copy(v confirm.View) error {
	t, ok := v.(rawSource)
	if !ok {
		return ErrUnsupported
	}
	if c.clipboard == nil {
		return perrors.ConfigError("clipboard is not available")
	}
	if err := t.Copy(c.clipboard); err != nil {
		return perrors.ExternalError(err, "copy failed")
	}
	fmt.Fprintln(c.out, okStyle.Render("copied"))
	return nil
}

func (c *Console) retry(ctx context.Context, v confirm.View) error {
	t, ok := v.(*confirm.OAuthView)
	if !ok {
		return ErrUnsupported
	}
	return t.Retry(ctx)
}
