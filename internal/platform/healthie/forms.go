package healthie

import (
	"fmt"
	"strings"
)

// yesNoPhrases identify questions that Healthie models as a 1-10 scale but
// the intake form asks as a yes/no question.
var yesNoPhrases = []string{
	"Do you have any surgery upcoming",
	"Are you currently taking an opioid medication",
	"Are you currently seeing a therapist or counselor",
	"unhealthy relationship with alcohol, drugs, or prescription medications",
}

// IsYesNoQuestion reports whether label contains one of the rewritten phrases.
// Matching is case-sensitive.
func IsYesNoQuestion(label string) bool {
	for _, p := range yesNoPhrases {
		if strings.Contains(label, p) {
			return true
		}
	}
	return false
}

// ApplyYesNoOverrides replaces the options of every yes/no question in form.
func ApplyYesNoOverrides(form *CustomModuleForm) {
	for i := range form.CustomModules {
		if IsYesNoQuestion(form.CustomModules[i].Label) {
			form.CustomModules[i].Options = []string{"Yes", "No"}
		}
	}
}

// normalizeOptions turns the loosely typed options value from the API into a
// string list. Null entries are dropped and anything that is not a list
// becomes nil.
func normalizeOptions(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, opt := range list {
		switch v := opt.(type) {
		case nil:
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func (n customModuleFormNode) form() *CustomModuleForm {
	f := &CustomModuleForm{
		ID:            n.ID,
		Name:          deref(n.Name),
		CustomModules: make([]CustomModule, 0, len(n.CustomModules)),
	}
	for _, m := range n.CustomModules {
		mod := CustomModule{
			ID:      m.ID,
			Label:   deref(m.Label),
			ModType: deref(m.ModType),
			Options: normalizeOptions(m.Options),
		}
		if m.Required != nil {
			mod.Required = *m.Required
		}
		f.CustomModules = append(f.CustomModules, mod)
	}
	return f
}

// joinMessages renders field messages as "field: message" pairs.
func joinMessages(msgs []fieldMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("%s: %s", deref(m.Field), deref(m.Message)))
	}
	return strings.Join(parts, ", ")
}
