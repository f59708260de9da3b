package banner

import (
	"github.com/charmbracelet/lipgloss"

	"diagload/internal/tui/styles"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
       ___                 __                __
  ____/ (_)___ _____ _   / /___  ____ _____/ /
 / __  / / __ '/ __ '/  / / __ \/ __ '/ __  / 
/ /_/ / / /_/ / /_/ /  / / /_/ / /_/ / /_/ /  
\__,_/_/\__,_/\__, /  /_/\____/\__,_/\__,_/   
             /____/                           `

	return "\n" + style.Render(ascii) + "\n" + renderer.NewStyle().Foreground(styles.ColorSubtle).Render("  synthetic load for the diagnostic-analysis service") + "\n"
}
