package banner

import (
	"flowbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    ______              ____                  __
   / ____/___  _      _/ __ )___  ____  _____/ /_
  / /_  / / __\ | /| / / __  / _ \/ __ \/ ___/ __ \
 / __/ / / /_/ \ |/ |/ / /_/ /  __/ / / / /__/ / / /
/_/   /_/\____/ |__/|_/_____/\___/_/ /_/\___/_/ /_/ `

	return "\n" + style.Render(ascii) + "\n"
}
