package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dvloznov/finance-assistant/internal/agent"
	"github.com/dvloznov/finance-assistant/internal/api/handlers"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/history"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		email string
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant",
		Long: `Start an interactive chat session.

Type a question and press enter. Commands:
  /new      start a new conversation
  /list     list your conversations
  /samples  show sample questions
  exit      leave the chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			render, err := newRenderer(plain)
			if err != nil {
				return err
			}

			s := &chatSession{
				in:      bufio.NewScanner(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
				history: a.History,
				respond: a.Agent.Respond,
				render:  render,
			}
			return s.run(ctx, email)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "your email address (prompted when empty)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print answers without markdown rendering")
	return cmd
}

func newRenderer(plain bool) (func(string) string, error) {
	if plain {
		return func(s string) string { return s + "\n" }, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, fmt.Errorf("chat: markdown renderer: %w", err)
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s + "\n"
		}
		return out
	}, nil
}

type respondFunc func(ctx context.Context, tenant identity.TenantID, conversationID, message string) (agent.Reply, error)

type chatSession struct {
	in      *bufio.Scanner
	out     io.Writer
	history history.Store
	respond respondFunc
	render  func(string) string

	tenant       identity.TenantID
	conversation domain.Conversation
}

func (s *chatSession) run(ctx context.Context, email string) error {
	// Step 1: Identify the user
	for {
		if email == "" {
			fmt.Fprint(s.out, "Enter your email: ")
			line, ok := s.readLine()
			if !ok {
				return nil
			}
			email = line
		}
		tenant, err := identity.Parse(email)
		if err == nil {
			s.tenant = tenant
			break
		}
		fmt.Fprintln(s.out, "Please enter a valid email address.")
		email = ""
	}

	// Step 2: Resume the latest conversation or start the first one
	convs, err := s.history.Conversations(ctx, s.tenant)
	if err != nil {
		return fmt.Errorf("chat: list conversations: %w", err)
	}
	if len(convs) > 0 {
		s.conversation = convs[len(convs)-1]
	} else if err := s.newConversation(ctx); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Welcome, %s. You are in %s.\n", s.tenant, s.conversation.Title())

	// Step 3: Conversation loop
	for {
		fmt.Fprint(s.out, "\n> ")
		line, ok := s.readLine()
		if !ok {
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			if err := s.newConversation(ctx); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Started %s.\n", s.conversation.Title())
			continue
		case "/list":
			if err := s.listConversations(ctx); err != nil {
				return err
			}
			continue
		case "/samples":
			for _, q := range handlers.SampleQuestions {
				fmt.Fprintln(s.out, "  -", q)
			}
			continue
		}

		reply, err := s.respond(ctx, s.tenant, s.conversation.ID, line)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		for _, inv := range reply.Invocations {
			status := "ok"
			if inv.Failed() {
				status = "failed"
			}
			fmt.Fprintf(s.out, "  [%s: %s]\n", inv.ToolName, status)
		}
		fmt.Fprint(s.out, s.render(reply.Answer))
	}
}

func (s *chatSession) readLine() (string, bool) {
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *chatSession) newConversation(ctx context.Context) error {
	conv, err := s.history.NewConversation(ctx, s.tenant)
	if err != nil {
		return fmt.Errorf("chat: new conversation: %w", err)
	}
	s.conversation = conv
	return nil
}

func (s *chatSession) listConversations(ctx context.Context) error {
	convs, err := s.history.Conversations(ctx, s.tenant)
	if err != nil {
		return fmt.Errorf("chat: list conversations: %w", err)
	}
	for _, c := range convs {
		marker := " "
		if c.ID == s.conversation.ID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s (%s)\n", marker, c.Title(), c.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
