package healthie

import "strings"

// Patient is the subset of a Healthie user the intake UI needs.
type Patient struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// CustomModule is a single question in a Healthie form.
type CustomModule struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	ModType  string   `json:"modType"`
	Required bool     `json:"required"`
	Options  []string `json:"options"`
}

// CustomModuleForm is a Healthie form definition with its questions in order.
type CustomModuleForm struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	CustomModules []CustomModule `json:"customModules"`
}

// FormAnswerInput is one answer in a form submission.
type FormAnswerInput struct {
	CustomModuleID string  `json:"customModuleId"`
	Answer         *string `json:"answer"`
}

// FormAnswerGroupInput is a complete form submission for one patient.
type FormAnswerGroupInput struct {
	CustomModuleFormID string            `json:"customModuleFormId"`
	UserID             string            `json:"userId"`
	FormAnswers        []FormAnswerInput `json:"formAnswers"`
}

// PatientSearch is the body of a patient search request. DOB is YYYY-MM-DD
// and optional.
type PatientSearch struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
}

// Keywords is the free-text term sent to Healthie's user search.
func (s PatientSearch) Keywords() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// FormSubmitted is returned after a successful form submission.
type FormSubmitted struct {
	FormAnswerGroupID string `json:"formAnswerGroupId"`
	Success           bool   `json:"success"`
}

// ---------------------------------------------------------------------------
// Wire types (GraphQL responses)
// ---------------------------------------------------------------------------

type userNode struct {
	ID        string  `json:"id"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	DOB       *string `json:"dob"`
}

func (u userNode) patient() Patient {
	return Patient{
		ID:        u.ID,
		Email:     deref(u.Email),
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
	}
}

type customModuleNode struct {
	ID       string      `json:"id"`
	Label    *string     `json:"label"`
	ModType  *string     `json:"mod_type"`
	Required *bool       `json:"required"`
	Options  interface{} `json:"options"`
}

type customModuleFormNode struct {
	ID            string             `json:"id"`
	Name          *string            `json:"name"`
	CustomModules []customModuleNode `json:"custom_modules"`
}

type fieldMessage struct {
	Field   *string `json:"field"`
	Message *string `json:"message"`
}

type formAnswerGroupNode struct {
	ID       string `json:"id"`
	Finished bool   `json:"finished"`
}

type formAnswerGroupSummary struct {
	ID               string `json:"id"`
	CreatedAt        string `json:"created_at"`
	CustomModuleForm *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"custom_module_form"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
