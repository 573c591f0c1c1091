package intake

import (
	"bytes"
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

// Status is the lifecycle tag of a Record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// DefaultSchemaVersion tags payloads produced by the first form revision.
const DefaultSchemaVersion = "1.0-poc"

// FormData is the schema-less part of an intake.
type FormData map[string]interface{}

// Demographics are the indexed columns shared by drafts and completed intakes.
type Demographics struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	DateOfBirth string  `json:"date_of_birth"`
	Phone       *string `json:"phone,omitempty"`
}

// Record maps to the intakes table.
type Record struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PatientExternalID string    `db:"patient_external_id" json:"patient_healthie_id"`
	Demographics
	SchemaVersion string     `db:"schema_version" json:"schema_version"`
	Status        Status     `db:"status" json:"status"`
	CurrentStep   *string    `db:"current_step" json:"current_step,omitempty"`
	FormData      FormData   `db:"form_data" json:"form_data"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	LastUpdatedAt time.Time  `db:"last_updated_at" json:"last_updated_at"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
}

// Summary is the short form returned for completed-intake lookups.
type Summary struct {
	ID                uuid.UUID  `json:"id"`
	PatientExternalID string     `json:"patient_healthie_id"`
	Status            Status     `json:"status"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
}

// Summary returns the short form of r.
func (r *Record) Summary() Summary {
	return Summary{
		ID:                r.ID,
		PatientExternalID: r.PatientExternalID,
		Status:            r.Status,
		SubmittedAt:       r.SubmittedAt,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
	}
}

// Submission is the request body for draft saves and final submissions.
type Submission struct {
	PatientExternalID string   `json:"patient_external_id"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	Email             string   `json:"email"`
	DateOfBirth       string   `json:"date_of_birth"`
	Phone             *string  `json:"phone,omitempty"`
	SchemaVersion     string   `json:"schema_version,omitempty"`
	Status            Status   `json:"status,omitempty"`
	CurrentStep       *string  `json:"current_step,omitempty"`
	FormData          FormData `json:"form_data"`
}

// UnmarshalJSON accepts patient_healthie_id as an alias of patient_external_id
// and current_step as either a string or a number. Any other current_step
// type is a Validation error.
func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	var aux struct {
		plain
		PatientHealthieID string          `json:"patient_healthie_id"`
		CurrentStep       json.RawMessage `json:"current_step,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Submission(aux.plain)
	if s.PatientExternalID == "" {
		s.PatientExternalID = aux.PatientHealthieID
	}
	step, err := decodeStep(aux.CurrentStep)
	if err != nil {
		return err
	}
	s.CurrentStep = step
	return nil
}

func decodeStep(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Validation("intake.validate", "current_step: %v", err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &t, nil
	case json.Number:
		step := t.String()
		return &step, nil
	default:
		return nil, apperr.Validation("intake.validate", "current_step must be a string or a number")
	}
}

const (
	maxNameLen  = 100
	maxPhoneLen = 20
)

// Normalize fills defaults and validates the shape of s.
func (s *Submission) Normalize() error {
	const op = "intake.validate"
	s.PatientExternalID = strings.TrimSpace(s.PatientExternalID)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.TrimSpace(s.Email)
	s.DateOfBirth = strings.TrimSpace(s.DateOfBirth)

	if s.PatientExternalID == "" {
		return apperr.Validation(op, "patient_external_id is required")
	}
	if err := checkLen("first_name", s.FirstName, 1, maxNameLen); err != nil {
		return err
	}
	if err := checkLen("last_name", s.LastName, 1, maxNameLen); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(s.Email); err != nil || strings.ContainsAny(s.Email, "<> ") {
		return apperr.Validation(op, "email is not a valid email address")
	}
	if _, err := time.Parse("2006-01-02", s.DateOfBirth); err != nil {
		return apperr.Validation(op, "date_of_birth must be formatted YYYY-MM-DD")
	}
	if s.Phone != nil && len(*s.Phone) > maxPhoneLen {
		return apperr.Validation(op, "phone must be at most %d characters", maxPhoneLen)
	}
	if s.SchemaVersion == "" {
		s.SchemaVersion = DefaultSchemaVersion
	}
	if s.FormData == nil {
		s.FormData = FormData{}
	}
	return nil
}

func checkLen(field, v string, min, max int) error {
	n := len([]rune(v))
	if n < min || n > max {
		return apperr.Validation("intake.validate", "%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

// Record builds the row to persist for s with the given status.
func (s *Submission) Record(status Status) *Record {
	r := &Record{
		PatientExternalID: s.PatientExternalID,
		Demographics: Demographics{
			FirstName:   s.FirstName,
			LastName:    s.LastName,
			Email:       s.Email,
			DateOfBirth: s.DateOfBirth,
			Phone:       s.Phone,
		},
		SchemaVersion: s.SchemaVersion,
		Status:        status,
		FormData:      s.FormData,
	}
	if status == StatusDraft {
		r.CurrentStep = s.CurrentStep
	}
	return r
}

// SaveResult is returned by the draft and submit writes.
type SaveResult struct {
	ID            uuid.UUID
	Status        Status
	LastUpdatedAt time.Time
	// Converted is true when Submit turned an existing draft into the
	// completed row rather than inserting a new one.
	Converted bool
}

func encodeFormData(fd FormData) ([]byte, error) {
	if fd == nil {
		fd = FormData{}
	}
	return json.Marshal(fd)
}

func decodeFormData(raw []byte) (FormData, error) {
	fd := FormData{}
	if len(raw) == 0 {
		return fd, nil
	}
	if err := json.Unmarshal(raw, &fd); err != nil {
		return nil, err
	}
	return fd, nil
}
