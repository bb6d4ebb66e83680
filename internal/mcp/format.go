package mcp

import (
	"fmt"
	"strings"
)

// FormatMatchResults renders a match as markdown for MCP clients.
func FormatMatchResults(out MatchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No occupations found for \"%s\"", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## NOC matches for \"%s\"\n\n", out.Query)
	fmt.Fprintf(&sb, "Found %d result", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "### %d. %s - %s (score: %.2f)\n\n", i+1, r.Code, displayTitle(r.Title), r.Score)
		if r.SkillTier != "" {
			fmt.Fprintf(&sb, "**TEER:** %s\n\n", r.SkillTier)
		}
		if len(r.AliasTitles) > 0 {
			fmt.Fprintf(&sb, "**Also known as:** %s\n\n", strings.Join(r.AliasTitles, ", "))
		}
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "%s\n\n", r.Snippet)
		}
	}
	return sb.String()
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
