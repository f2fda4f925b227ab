package chat

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Result is one resolved reply as the chat UI shows it.
type Result struct {
	Text      string
	RuleID    string
	RuleType  string
	Tier      string
	Anomalies []string
}

// ResolveFunc answers one message typed into the chat.
type ResolveFunc func(ctx context.Context, message string) (Result, error)

// RuntimeInfo is shown in the chat header.
type RuntimeInfo struct {
	Source  string
	Rules   int
	Policy  string
	Session string
}

func RunInteractive(ctx context.Context, resolveFn ResolveFunc, info RuntimeInfo) error {
	model := newModel(ctx, resolveFn, modeInteractive, "", info)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Println(renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, resolveFn ResolveFunc, info RuntimeInfo, message string) error {
	model := newModel(ctx, resolveFn, modeOneShot, message, info)
	program := tea.NewProgram(model)
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("Thanks for chatting with replybot")
}
