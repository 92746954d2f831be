package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rohankatakam/pipepilot/internal/channel"
	"github.com/rohankatakam/pipepilot/internal/config"
	"github.com/rohankatakam/pipepilot/internal/confirm"
	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/rohankatakam/pipepilot/internal/logging"
	"github.com/rohankatakam/pipepilot/internal/oauth"
	"github.com/rohankatakam/pipepilot/internal/session"
	"github.com/rohankatakam/pipepilot/internal/terminal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a conversation with the pipeline agent",
	Long: `Connect to the agent, stream its replies, and answer the confirmations
it asks for. Type "help" at the prompt for the list of commands.

Account connections open in your browser; a small local server receives
the result, so keep this terminal open until the browser says you are done.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if result := cfg.Validate(config.ValidationContextChat); result.HasErrors() {
		return errors.New(result.Error())
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	bus := oauth.NewCallbackBus()
	server := oauth.NewCallbackServer(bus, cfg.Callback.Addr)
	server.HoldTimeout = cfg.Callback.HoldTimeout
	if err := server.Listen(); err != nil {
		return err
	}
	logger.WithField("url", server.CallbackURL()).Debug("OAuth callback server listening")

	chCfg := channel.DefaultConfig(cfg.Backend.URL, cfg.Backend.Token)
	chCfg.ReconnectInterval = cfg.Channel.ReconnectInterval
	chCfg.WriteTimeout = cfg.Channel.WriteTimeout
	ws := channel.NewWSClient(chCfg)

	requester := oauth.NewHTTPAuthURLClient(cfg.Backend.APIBase, cfg.Backend.Token)
	requester.RedirectURL = server.CallbackURL()

	sess := session.New(session.Config{
		UserID:    cfg.Backend.UserID,
		Sender:    ws,
		Navigator: confirm.SystemBrowser{},
		Opener:    oauth.NewBrowserOpener(server),
		Requester: requester,
		Bus:       bus,
		OnComplete: func(d directive.Directive, decision confirm.Decision) {
			logger.WithFields(logrus.Fields{
				"directive": d.ID,
				"category":  d.Category,
				"decision":  decision,
			}).Debug("Confirmation delivered")
		},
	})
	defer sess.Close()

	in := bufio.NewReader(os.Stdin)
	var clipboard confirm.Clipboard
	if sys := (confirm.SystemClipboard{}); sys.Available() {
		clipboard = sys
	}
	console := terminal.NewConsole(sess, os.Stdout, clipboard, passwordReader(in))

	// the console is driven from two goroutines: incoming turns and typed
	// commands
	var uiMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error {
		for turn := range ws.Turns() {
			rt := sess.Ingest(turn)
			uiMu.Lock()
			console.ShowTurn(rt)
			uiMu.Unlock()
		}
		return nil
	})

	// stdin cannot be interrupted, so the input loop lives outside the group
	// and ends the session by cancelling it
	go func() {
		defer cancel()
		for {
			fmt.Print("> ")
			line, err := in.ReadString('\n')
			if line != "" {
				uiMu.Lock()
				execErr := console.Execute(ctx, line)
				uiMu.Unlock()
				if errors.Is(execErr, terminal.ErrQuit) {
					return
				}
				if execErr != nil {
					var pe *perrors.Error
					if errors.As(execErr, &pe) && logging.IsDebugEnabled() {
						slog.Debug("command failed", "component", "console", "detail", pe.DetailedString())
					}
					fmt.Println(terminal.RenderError(execErr))
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.WithError(err).Warn("Failed to read input")
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	if path := logging.GetLogFilePath(); path != "" {
		logger.WithField("path", path).Debug("Writing session log")
	}
	fmt.Printf("Connected as %s. Type \"help\" for commands, \"quit\" to leave.\n", displayUser(sess))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// passwordReader reads without echo on a terminal and falls back to the next
// input line when stdin is piped
func passwordReader(in *bufio.Reader) terminal.PasswordReader {
	return func() (string, error) {
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		}
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

func displayUser(sess *session.Session) string {
	if id := sess.UserID(); id != "" {
		return id
	}
	return "an unknown user"
}
