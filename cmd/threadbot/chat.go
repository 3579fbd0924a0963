package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/quailyquaily/threadbot/internal/configutil"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/responder"
	"github.com/quailyquaily/threadbot/tools"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type chatResponder interface {
	GenerateResponse(ctx context.Context, messages []llm.Message, opts responder.Options) (string, error)
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: "With a message argument (or piped stdin) chat answers once and exits. " +
			"Otherwise it starts an interactive session; /reset clears the conversation and /exit quits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, configutil.FlagOrViperBool(cmd, "inspect-request", ""), "chat")
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			s := &chatSession{responder: rt.Responder, out: cmd.OutOrStdout()}
			if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
				errOut := cmd.ErrOrStderr()
				s.status = tools.StatusFunc(func(text string) {
					fmt.Fprintf(errOut, "  … threadbot %s\n", text)
				})
			}

			if msg := strings.TrimSpace(strings.Join(args, " ")); msg != "" {
				return s.ask(cmd.Context(), msg)
			}
			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
				raw, err := io.ReadAll(f)
				if err != nil {
					return err
				}
				return s.ask(cmd.Context(), string(raw))
			}
			return s.repl(cmd.Context(), in, true)
		},
	}
	cmd.Flags().BoolP("quiet", "q", false, "Hide status lines.")
	cmd.Flags().Bool("inspect-request", false, "Dump LLM request/response payloads to ./dump/chat_requests_YYYYMMDD_HHMMSS.md.")
	return cmd
}

type chatSession struct {
	responder  chatResponder
	out        io.Writer
	status     tools.StatusReporter
	transcript []llm.Message
}

// ask answers msg in the context of the session so far. A failed turn leaves
// the transcript unchanged.
func (s *chatSession) ask(ctx context.Context, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}
	turn := append(append([]llm.Message(nil), s.transcript...), llm.Message{Role: llm.RoleUser, Content: msg})
	reply, err := s.responder.GenerateResponse(ctx, turn, responder.Options{Status: s.status, UserID: "cli"})
	if err != nil {
		return err
	}
	s.transcript = append(turn, llm.Message{Role: llm.RoleAssistant, Content: reply})
	_, err = fmt.Fprintln(s.out, reply)
	return err
}

func (s *chatSession) repl(ctx context.Context, in io.Reader, prompt bool) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		if prompt {
			fmt.Fprint(s.out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.transcript = nil
			fmt.Fprintln(s.out, "(conversation cleared)")
			continue
		}
		if err := s.ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.out, "error:", err)
		}
	}
}
