package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/aduki-inc/pori/theme"
)

var (
	Name        = "pori"
	Authors     = "Aduki Inc"
	Description = "Reverse-tunnel proxy for exposing a local origin through a relay server"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/aduki-inc/pori"
	GithubHomeUri   = "https://github.com/aduki-inc/pori"
	GithubLatestUri = "https://github.com/aduki-inc/pori/releases/latest"
)

// PrintVersionInfo writes the startup banner. extendedInfo adds build metadata,
// shown for `pori --version` and suppressed on the plain startup banner.
func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padLatest := fmt.Sprintf("%*s", 1-len(Version), "")
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔────────────────────────────────────────────────────────╗
│   ██████╗  ██████╗ ██████╗ ██╗                         │
│   ██╔══██╗██╔═══██╗██╔══██╗██║                         │
│   ██████╔╝██║   ██║██████╔╝██║                         │
│   ██╔═══╝ ██║   ██║██╔══██╗██║                         │
│   ██║     ╚██████╔╝██║  ██║██║                         │
│   ╚═╝      ╚═════╝ ╚═╝  ╚═╝╚═╝                         │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padLatest)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourSplash("  │\n"))
	b.WriteString(theme.ColourSplash("╚────────────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
