package comment

import (
	"fmt"
	"strings"
)

// Section is one named result block within an environment report, e.g.
// "Format", "Init", "Validate", "Plan" or "Next action". Body is
// pre-rendered markdown.
type Section struct {
	Name string
	Body string
}

// EnvironmentReport carries the rendered tool results for one deployment
// environment. Sections keep their insertion order.
type EnvironmentReport struct {
	Environment string
	Sections    []Section
}

// Render produces the markdown placed between the environment's start/end
// markers. Rendering is a pure function of the report fields; captured
// tool output is embedded as-is, so stray triple fences inside it can
// break the enclosing fence (known limitation).
func (r EnvironmentReport) Render() string {
	lines := []string{fmt.Sprintf("### Environment `%s`", r.Environment)}

	for _, s := range r.Sections {
		lines = append(lines, "", s.Body)
	}

	return strings.Join(lines, "\n")
}

// OutcomeSection renders a one-line step result, e.g.
// "**Validate**: ✅ success".
func OutcomeSection(name, outcome string) Section {
	return Section{
		Name: name,
		Body: fmt.Sprintf("**%s**: %s %s", name, outcomeIcon(outcome), outcome),
	}
}

// DetailSection renders a step result with its captured output folded
// into a collapsible block.
func DetailSection(name, outcome, output string) Section {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutcomeSection(name, outcome)
	}

	body := fmt.Sprintf("**%s**: %s %s\n\n<details><summary>Show output</summary>\n\n```\n%s\n```\n\n</details>",
		name, outcomeIcon(outcome), outcome, output)
	return Section{Name: name, Body: body}
}

// NextActionSection renders the trailing guidance line.
func NextActionSection(text string) Section {
	return Section{
		Name: "Next action",
		Body: fmt.Sprintf("> **Next action**: %s", text),
	}
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case "success", "unchanged":
		return "✅"
	case "changed":
		return "📝"
	case "failure":
		return "❌"
	case "skipped":
		return "⏭️"
	default:
		return "ℹ️"
	}
}
