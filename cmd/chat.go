package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"replybot/pkg/engine"
	"replybot/pkg/logger"
	"replybot/pkg/rule"
	"replybot/pkg/rulestore"
	"replybot/pkg/ui/chat"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const consoleChannelName = "console"

var (
	messageText      string
	chatName         string
	chatFirstContact bool
	chatPlain        bool
)

// chatCmd talks to the rules from the terminal.
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message or start an interactive chat",
	Long:  "Loads the reply rules and answers one message, or starts an interactive console that shows which rule answered each message.",
	RunE: func(cmd *cobra.Command, args []string) error {
		message := resolveMessage(args)

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// The console shows anomalies itself; log lines would garble the screen.
		log := logger.Discard()
		if chatPlain {
			if log, err = logger.New(cfg.Logging); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
		}

		store, err := rulestore.Open(cfg.Rules.Path, rulestore.Options{MaxPatternLength: cfg.Engine.MaxPatternLength, Logger: log})
		if err != nil {
			return err
		}

		resolver, err := newResolver(cfg, nil, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if cfg.Rules.Watch {
			go func() {
				if err := store.Watch(ctx); err != nil {
					log.Warn("Rules watcher stopped", "error", err)
				}
			}()
		}

		session := newConsoleSession(store, resolver, chatName, chatFirstContact)

		switch {
		case chatPlain:
			if message != "" {
				return runPlainMessage(ctx, cmd.OutOrStdout(), session, message)
			}
			return runPlainInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), session)
		case message != "":
			return chat.RunOneShot(ctx, session.resolve, session.info(cfg.Engine.ReplyPolicy), message)
		default:
			return chat.RunInteractive(ctx, session.resolve, session.info(cfg.Engine.ReplyPolicy))
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&messageText, "message", "m", "", "message text to send")
	chatCmd.Flags().StringVarP(&chatName, "name", "n", "", "display name used for %name%, %first_name% and %last_name%")
	chatCmd.Flags().BoolVar(&chatFirstContact, "first-contact", true, "treat the first message as the start of a new conversation")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "read and print plain lines instead of the full-screen console")
}

func resolveMessage(args []string) string {
	if value := strings.TrimSpace(messageText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

// consoleSession is one terminal conversation. Only its first message can be a
// first contact.
type consoleSession struct {
	store    *rulestore.Store
	resolver *engine.Resolver
	key      string

	mu   sync.Mutex
	conv rule.Conversation
}

func newConsoleSession(store *rulestore.Store, resolver *engine.Resolver, name string, firstContact bool) *consoleSession {
	first, last := splitName(name)
	key := consoleChannelName + ":" + uuid.NewString()

	return &consoleSession{
		store:    store,
		resolver: resolver,
		key:      key,
		conv: rule.Conversation{
			Name:         strings.TrimSpace(name),
			FirstName:    first,
			LastName:     last,
			ChatName:     consoleChannelName,
			FirstContact: firstContact,
			SessionKey:   key,
			Channel:      consoleChannelName,
		},
	}
}

func (s *consoleSession) resolve(_ context.Context, message string) (chat.Result, error) {
	s.mu.Lock()
	conv := s.conv
	s.conv.FirstContact = false
	s.mu.Unlock()

	reply, err := s.resolver.Resolve(message, conv, s.store.Snapshot())
	if err != nil {
		return chat.Result{}, err
	}

	return chat.Result{
		Text:      reply.Text,
		RuleID:    reply.RuleID,
		RuleType:  string(reply.RuleType),
		Tier:      string(reply.Tier),
		Anomalies: reply.AnomalyStrings(),
	}, nil
}

func (s *consoleSession) info(policy string) chat.RuntimeInfo {
	info := chat.RuntimeInfo{Source: s.store.Path(), Policy: policy, Session: s.key}
	if snap := s.store.Snapshot(); snap != nil {
		info.Rules = snap.Len()
	}

	return info
}

func runPlainMessage(ctx context.Context, out io.Writer, session *consoleSession, message string) error {
	result, err := session.resolve(ctx, message)
	if err != nil {
		return err
	}

	printBotMessage(out, result)
	return nil
}

func runPlainInteractive(ctx context.Context, in io.Reader, out io.Writer, session *consoleSession) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if isExitCommand(message) {
			return nil
		}

		result, err := session.resolve(ctx, message)
		if err != nil {
			fmt.Fprintf(out, "no reply: %v\n\n", err)
			continue
		}

		printBotMessage(out, result)
	}
}

func printBotMessage(out io.Writer, result chat.Result) {
	lines := botLines(result.Text)
	for _, line := range lines {
		fmt.Fprintf(out, "bot: %s\n", line)
	}
	fmt.Fprintf(out, "     [rule %s, %s]\n", result.RuleID, result.RuleType)
	for _, anomaly := range result.Anomalies {
		fmt.Fprintf(out, "     ! %s\n", anomaly)
	}
	fmt.Fprintln(out)
}

func botLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
