package chat

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for chat UI regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	bootLine   lipgloss.Style
	bootDone   lipgloss.Style
	userBox    lipgloss.Style
	userTitle  lipgloss.Style
	botBox     lipgloss.Style
	botTitle   lipgloss.Style
	ruleBox    lipgloss.Style
	ruleTitle  lipgloss.Style
	errorBox   lipgloss.Style
	errorTitle lipgloss.Style
	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

// Card accents, one per chat role.
const (
	accentUser    = lipgloss.Color("214")
	accentBot     = lipgloss.Color("44")
	accentAnomaly = lipgloss.Color("109")
	accentError   = lipgloss.Color("160")
	textError     = lipgloss.Color("203")
	textDark      = lipgloss.Color("16")
	textMuted     = lipgloss.Color("244")
)

// box frames a card body with the role's accent border.
func box(border lipgloss.Border, accent, background lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(accent).
		Background(background).
		Padding(0, 1)
}

// badge renders a card title on the role's accent.
func badge(foreground, background lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(foreground).
		Background(background).
		Padding(0, 1)
}

func bold(color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

// defaultTheme is the palette used by the chat UI. Bot replies, anomalies and
// failures each get their own accent so a resolution reads at a glance.
func defaultTheme() theme {
	return theme{
		header:     badge(lipgloss.Color("230"), lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().Foreground(lipgloss.Color("223")),
		divider:    lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
		bootLine:   lipgloss.NewStyle().Foreground(lipgloss.Color("180")),
		bootDone:   bold(lipgloss.Color("114")),

		userBox:    box(lipgloss.DoubleBorder(), accentUser, lipgloss.Color("235")),
		userTitle:  badge(textDark, accentUser),
		botBox:     box(lipgloss.DoubleBorder(), accentBot, lipgloss.Color("234")),
		botTitle:   badge(textDark, accentBot),
		ruleBox:    box(lipgloss.RoundedBorder(), accentAnomaly, lipgloss.Color("236")).Foreground(lipgloss.Color("252")),
		ruleTitle:  badge(textDark, accentAnomaly),
		errorBox:   box(lipgloss.DoubleBorder(), textError, lipgloss.Color("52")).Foreground(textError),
		errorTitle: badge(lipgloss.Color("231"), accentError),

		status:     bold(lipgloss.Color("250")),
		statusBusy: bold(lipgloss.Color("222")),
		statusErr:  bold(textError),
		hint:       lipgloss.NewStyle().Foreground(textMuted),
		inputLabel: bold(lipgloss.Color("229")),
		input:      box(lipgloss.RoundedBorder(), lipgloss.Color("173"), lipgloss.Color("236")),
		viewport:   box(lipgloss.ThickBorder(), lipgloss.Color("130"), lipgloss.Color("233")),
	}
}
