package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/nadmax/nexcoach/internal/task"
)

// Property names in the tasks, goals and projects databases.
const (
	propTitle           = "Name"
	propStatus          = "Status"
	propCategory        = "Category"
	propType            = "Type"
	propPriority        = "Priority"
	propProject         = "Project"
	propStartDate       = "Start Date"
	propCompletionDate  = "Completion Date"
	propPlannedDate     = "Planned Completion Date"
	propDueDate         = "Due Date"
	propDependencies    = "Dependencies"
	propQuality         = "Quality"
	propDelayed         = "Delayed"
	propTargetDate      = "Target Date"
	propProgress        = "Progress"
	propSuccessCriteria = "Success Criteria"
	propGoals           = "Goals"
	propObjectives      = "Objectives"
)

func decodeTask(page notionapi.Page) task.Task {
	props := page.Properties
	return task.Task{
		ID:                    string(page.ID),
		Title:                 title(props),
		Category:              text(props, propCategory),
		Type:                  text(props, propType),
		Status:                task.Status(text(props, propStatus)),
		Priority:              text(props, propPriority),
		ProjectID:             firstRelation(props, propProject),
		StartDate:             date(props, propStartDate),
		CompletionDate:        date(props, propCompletionDate),
		PlannedCompletionDate: date(props, propPlannedDate),
		DueDate:               date(props, propDueDate),
		Dependencies:          relations(props, propDependencies),
		Quality:               number(props, propQuality),
		Delayed:               checkbox(props, propDelayed),
		URL:                   page.URL,
	}
}

func decodeGoal(page notionapi.Page) task.Goal {
	props := page.Properties
	return task.Goal{
		ID:              string(page.ID),
		Title:           title(props),
		Category:        text(props, propCategory),
		Status:          task.Status(text(props, propStatus)),
		TargetDate:      date(props, propTargetDate),
		Progress:        number(props, propProgress),
		SuccessCriteria: lines(text(props, propSuccessCriteria)),
	}
}

func decodeProject(page notionapi.Page) task.Project {
	props := page.Properties
	return task.Project{
		ID:         string(page.ID),
		Name:       title(props),
		Status:     task.Status(text(props, propStatus)),
		GoalIDs:    relations(props, propGoals),
		Objectives: lines(text(props, propObjectives)),
	}
}

// title returns the page's title property whatever it is named.
func title(props notionapi.Properties) string {
	if s := text(props, propTitle); s != "" {
		return s
	}
	for _, p := range props {
		switch v := p.(type) {
		case *notionapi.TitleProperty:
			return plainText(v.Title)
		case notionapi.TitleProperty:
			return plainText(v.Title)
		}
	}
	return ""
}

// text reads any textual property kind. Missing or non-textual properties
// read as "".
func text(props notionapi.Properties, name string) string {
	switch v := props[name].(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case notionapi.StatusProperty:
		return v.Status.Name
	default:
		return ""
	}
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

func date(props notionapi.Properties, name string) *time.Time {
	var obj *notionapi.DateObject
	switch v := props[name].(type) {
	case *notionapi.DateProperty:
		obj = v.Date
	case notionapi.DateProperty:
		obj = v.Date
	}
	if obj == nil || obj.Start == nil {
		return nil
	}
	t := time.Time(*obj.Start)
	return &t
}

func number(props notionapi.Properties, name string) *float64 {
	switch v := props[name].(type) {
	case *notionapi.NumberProperty:
		n := v.Number
		return &n
	case notionapi.NumberProperty:
		n := v.Number
		return &n
	}
	return nil
}

func checkbox(props notionapi.Properties, name string) bool {
	switch v := props[name].(type) {
	case *notionapi.CheckboxProperty:
		return v.Checkbox
	case notionapi.CheckboxProperty:
		return v.Checkbox
	}
	return false
}

func relations(props notionapi.Properties, name string) []string {
	var rel []notionapi.Relation
	switch v := props[name].(type) {
	case *notionapi.RelationProperty:
		rel = v.Relation
	case notionapi.RelationProperty:
		rel = v.Relation
	}

	ids := make([]string, 0, len(rel))
	for _, r := range rel {
		ids = append(ids, string(r.ID))
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func firstRelation(props notionapi.Properties, name string) string {
	if ids := relations(props, name); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
