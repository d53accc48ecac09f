package styles

import "github.com/charmbracelet/lipgloss"

var (
	TITLE = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7d56f4"))

	INFO = lipgloss.NewStyle().
		Italic(true).
		Foreground(lipgloss.Color("#888888"))

	SUCCESS = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#28a745"))

	ERROR = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ee4b2b"))

	// PROMPT is the REPL prompt, ECHO a reply from the server.
	PROMPT = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#56b6f4"))

	ECHO = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#e5c07b"))
)

// Server renders a line received from the server.
func Server(text string) string {
	return ECHO.Render("Server:") + " " + text
}
