package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/klara-research/klarity/theme"
)

var (
	Name        = "klarity"
	Authors     = "Klara Research"
	Description = "Uncertainty estimation for LLM generations"
	Version     = "v0.1.0"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/klara-research/klarity"
	GithubHomeUri   = "https://github.com/klara-research/klarity"
	GithubLatestUri = "https://github.com/klara-research/klarity/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
██╗  ██╗██╗      █████╗ ██████╗ ██╗████████╗██╗   ██╗
██║ ██╔╝██║     ██╔══██╗██╔══██╗██║╚══██╔══╝╚██╗ ██╔╝
█████╔╝ ██║     ███████║██████╔╝██║   ██║    ╚████╔╝
██╔═██╗ ██║     ██╔══██║██╔══██╗██║   ██║     ╚██╔╝
██║  ██╗███████╗██║  ██║██║  ██║██║   ██║      ██║
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝   ╚═╝      ╚═╝` + "\n"))

	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString("  ")
	b.WriteString(theme.ColourVersion(latestUri))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
