package insights

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nadmax/nexcoach/internal/llm"
	"github.com/tidwall/gjson"
)

const systemPrompt = "You are an AI life coach analyzing patterns to provide actionable insights."

func buildPrompt(a Analysis) (string, error) {
	goals, err := json.MarshalIndent(a.GoalProgress, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal goal progress: %w", err)
	}
	success, err := json.MarshalIndent(a.Patterns.SuccessFactors, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal success factors: %w", err)
	}
	timelines, err := json.MarshalIndent(a.Timelines, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal timelines: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze the following patterns and provide strategic insights:\n\n")

	b.WriteString("Task Completion:\n")
	fmt.Fprintf(&b, "- Tasks: %d\n", a.TaskCount)
	fmt.Fprintf(&b, "- Completion Rate: %.2f\n", a.CompletionRate)
	fmt.Fprintf(&b, "- Peak Hours: %v\n", a.Patterns.Productivity.PeakHours)
	fmt.Fprintf(&b, "- Task Velocity: %.2f hours between completions\n", a.Patterns.Productivity.TaskVelocity)
	fmt.Fprintf(&b, "- Blocked Tasks: %d\n\n", len(a.Blockers))

	b.WriteString("Goal Progress:\n")
	b.Write(goals)
	b.WriteString("\n\nSuccess Factors:\n")
	b.Write(success)

	b.WriteString("\n\nBehavior Patterns:\n")
	fmt.Fprintf(&b, "- Focus Periods: %d\n", len(a.Patterns.Behavior.FocusPeriods))
	fmt.Fprintf(&b, "- Procrastination Triggers: %v\n", a.Patterns.Behavior.ProcrastinationTriggers)
	fmt.Fprintf(&b, "- Adaptability: %.2f\n", a.Patterns.Behavior.Adaptability)

	if len(a.Bottlenecks) > 0 {
		b.WriteString("\nBottlenecks:\n")
		for _, bn := range a.Bottlenecks {
			fmt.Fprintf(&b, "- %s: %d blocked tasks (impact %.2f)\n", bn.ProjectName, len(bn.BlockedTasks), bn.Impact)
		}
	}

	b.WriteString("\nProject Timelines:\n")
	b.Write(timelines)

	b.WriteString("\n\nProvide insights formatted as JSON with keys: summary, patterns, recommendations, priorities")
	return b.String(), nil
}

// parseReply reads the JSON insight keys from reply. A reply that is not a
// JSON object becomes the summary as-is.
func parseReply(reply string) *Insight {
	body := llm.StripJSONFences(reply)
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		return &Insight{
			Summary:         strings.TrimSpace(reply),
			Patterns:        []string{},
			Recommendations: []string{},
			Priorities:      []string{},
			Raw:             reply,
		}
	}

	parsed := gjson.Parse(body)
	return &Insight{
		Summary:         parsed.Get("summary").String(),
		Patterns:        stringList(parsed.Get("patterns")),
		Recommendations: stringList(parsed.Get("recommendations")),
		Priorities:      stringList(parsed.Get("priorities")),
		Raw:             reply,
	}
}

// stringList flattens a string or an array of strings and objects. Objects
// are kept as their raw JSON.
func stringList(v gjson.Result) []string {
	out := []string{}
	switch {
	case !v.Exists():
	case v.IsArray():
		for _, item := range v.Array() {
			if item.Type == gjson.String {
				out = append(out, item.String())
			} else {
				out = append(out, item.Raw)
			}
		}
	case v.IsObject():
		out = append(out, v.Raw)
	default:
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
