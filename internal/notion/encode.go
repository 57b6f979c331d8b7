package notion

import (
	"time"

	"github.com/jomei/notionapi"
	"github.com/nadmax/nexcoach/internal/task"
)

// encodeUpdate turns a partial task change into page properties. Only the
// fields set in u are written.
func (c *Client) encodeUpdate(u task.Update) notionapi.Properties {
	props := notionapi.Properties{}

	if u.Status != nil {
		props[propStatus] = c.statusProperty(string(*u.Status))
	}
	if u.Priority != nil {
		props[propPriority] = selectProperty(*u.Priority)
	}
	if u.Category != nil {
		props[propCategory] = selectProperty(*u.Category)
	}
	if u.Type != nil {
		props[propType] = selectProperty(*u.Type)
	}
	if u.StartDate != nil {
		props[propStartDate] = dateProperty(*u.StartDate)
	}
	if u.CompletionDate != nil {
		props[propCompletionDate] = dateProperty(*u.CompletionDate)
	}
	if u.PlannedCompletionDate != nil {
		props[propPlannedDate] = dateProperty(*u.PlannedCompletionDate)
	}
	if u.DueDate != nil {
		props[propDueDate] = dateProperty(*u.DueDate)
	}
	if u.Quality != nil {
		props[propQuality] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: *u.Quality,
		}
	}
	if u.Delayed != nil {
		props[propDelayed] = notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: *u.Delayed,
		}
	}

	return props
}

func (c *Client) statusProperty(name string) notionapi.Property {
	if c.statusKind == StatusKindSelect {
		return selectProperty(name)
	}
	return notionapi.StatusProperty{
		Type:   notionapi.PropertyTypeStatus,
		Status: notionapi.Status{Name: name},
	}
}

func selectProperty(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}

func titleProperty(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}
