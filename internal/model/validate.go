package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Field constraints are data, not scattered conditionals: each entity has a
// table, checked by Check at the validation boundary before anything is
// persisted.

type Constraint struct {
	Field    string
	Required bool
	MinLen   int
	MaxLen   int
	Enum     []string
	Pattern  *regexp.Regexp
	Label    string
}

var (
	usernamePattern   = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)
	colorPattern      = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

var UserConstraints = []Constraint{
	{Field: "username", Required: true, Pattern: usernamePattern, Label: "3-32 word characters"},
	{Field: "email", Required: true, MaxLen: 254, Pattern: emailPattern, Label: "a valid email address"},
	{Field: "fullName", MaxLen: 120},
	{Field: "role", Enum: []string{string(GlobalAdmin), string(GlobalManager), string(GlobalDeveloper), string(GlobalViewer)}},
}

var ProjectConstraints = []Constraint{
	{Field: "name", Required: true, MinLen: 2, MaxLen: 120},
	{Field: "key", Required: true, Pattern: projectKeyPattern, Label: "2-10 uppercase letters or digits, starting with a letter"},
	{Field: "description", MaxLen: 2000},
	{Field: "status", Enum: []string{string(ProjectActive), string(ProjectArchived)}},
}

var ItemConstraints = []Constraint{
	{Field: "title", Required: true, MinLen: 1, MaxLen: 200},
	{Field: "description", MaxLen: 10000},
	{Field: "type", Required: true, Enum: []string{string(ItemTask), string(ItemBug), string(ItemStory), string(ItemEpic)}},
	{Field: "status", Enum: []string{string(StatusTodo), string(StatusInProgress), string(StatusInReview), string(StatusDone)}},
	{Field: "priority", Enum: []string{string(PriorityLow), string(PriorityMedium), string(PriorityHigh), string(PriorityCritical)}},
}

var TagConstraints = []Constraint{
	{Field: "name", Required: true, MinLen: 1, MaxLen: 50},
	{Field: "color", Pattern: colorPattern, Label: "a hex color like #7d56f4"},
}

var CommentConstraints = []Constraint{
	{Field: "content", Required: true, MinLen: 1, MaxLen: 5000},
}

// Check runs the constraint table over the given field values and returns
// field-level messages, empty when everything passes. Fields absent from the
// map are skipped entirely, so partial updates pass just the fields present;
// create paths pass every field, empty or not.
func Check(values map[string]string, constraints []Constraint) []string {
	messages := make([]string, 0)
	for _, c := range constraints {
		value, present := values[c.Field]
		if !present {
			continue
		}
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			if c.Required {
				messages = append(messages, fmt.Sprintf("%s is required", c.Field))
			}
			continue
		}
		if c.MinLen > 0 && len(trimmed) < c.MinLen {
			messages = append(messages, fmt.Sprintf("%s must be at least %d characters", c.Field, c.MinLen))
		}
		if c.MaxLen > 0 && len(trimmed) > c.MaxLen {
			messages = append(messages, fmt.Sprintf("%s must be at most %d characters", c.Field, c.MaxLen))
		}
		if len(c.Enum) > 0 && !containsString(c.Enum, trimmed) {
			messages = append(messages, fmt.Sprintf("%s must be one of %s", c.Field, strings.Join(c.Enum, ", ")))
		}
		if c.Pattern != nil && !c.Pattern.MatchString(trimmed) {
			label := c.Label
			if label == "" {
				label = "in a valid format"
			}
			messages = append(messages, fmt.Sprintf("%s must be %s", c.Field, label))
		}
	}
	return messages
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
