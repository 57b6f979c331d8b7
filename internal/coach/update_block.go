package coach

import (
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/nexcoach/internal/task"
)

const (
	updateOpen  = "[TASK_UPDATE]"
	updateClose = "[/TASK_UPDATE]"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseUpdateBlock extracts the first [TASK_UPDATE] ... [/TASK_UPDATE] block
// of "key: value" lines from reply. It returns reply without the block and
// the update, which is nil when no block or no usable line was found.
// Unknown keys and unparsable values are skipped.
func ParseUpdateBlock(reply string) (string, *task.Update) {
	start := strings.Index(reply, updateOpen)
	if start < 0 {
		return strings.TrimSpace(reply), nil
	}

	bodyStart := start + len(updateOpen)
	end := strings.Index(reply[bodyStart:], updateClose)
	var body, rest string
	if end < 0 {
		body = reply[bodyStart:]
		rest = reply[:start]
	} else {
		body = reply[bodyStart : bodyStart+end]
		rest = reply[:start] + reply[bodyStart+end+len(updateClose):]
	}

	var u task.Update
	for _, line := range strings.Split(body, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		applyField(&u, normalizeKey(key), strings.TrimSpace(value))
	}

	cleaned := strings.TrimSpace(rest)
	if u.IsEmpty() {
		return cleaned, nil
	}
	return cleaned, &u
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.TrimLeft(key, "-* ")
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

func applyField(u *task.Update, key, value string) {
	if value == "" {
		return
	}

	switch key {
	case "status":
		s := task.Status(value)
		u.Status = &s
	case "priority":
		u.Priority = &value
	case "category":
		u.Category = &value
	case "type":
		u.Type = &value
	case "start_date", "start":
		setDate(&u.StartDate, value)
	case "completion_date", "completed", "completed_at":
		setDate(&u.CompletionDate, value)
	case "planned_completion_date", "planned_completion", "planned_date":
		setDate(&u.PlannedCompletionDate, value)
	case "due_date", "due":
		setDate(&u.DueDate, value)
	case "quality":
		if q, err := strconv.ParseFloat(value, 64); err == nil && q >= 0 && q <= 1 {
			u.Quality = &q
		}
	case "delayed":
		if b, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			u.Delayed = &b
		}
	}
}

// setDate keeps the previous value when value is not a date.
func setDate(dst **time.Time, value string) {
	if t := parseDate(value); t != nil {
		*dst = t
	}
}

func parseDate(value string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
