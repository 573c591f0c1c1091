package intake

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

func validSubmission() *Submission {
	return &Submission{
		PatientExternalID: "3642270",
		FirstName:         "Jane",
		LastName:          "Doe",
		Email:             "jane@example.com",
		DateOfBirth:       "1990-04-12",
	}
}

func TestSubmission_UnmarshalJSON_HealthieIDAlias(t *testing.T) {
	var s Submission
	body := `{"patient_healthie_id":"999","first_name":"A","last_name":"B","email":"a@b.co","date_of_birth":"2000-01-01"}`
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PatientExternalID != "999" {
		t.Errorf("expected external id 999, got %q", s.PatientExternalID)
	}
}

func TestSubmission_UnmarshalJSON_ExternalIDWins(t *testing.T) {
	var s Submission
	body := `{"patient_external_id":"1","patient_healthie_id":"2"}`
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PatientExternalID != "1" {
		t.Errorf("expected external id 1, got %q", s.PatientExternalID)
	}
}

func TestSubmission_UnmarshalJSON_CurrentStep(t *testing.T) {
	tests := []struct {
		body  string
		want  string
		isNil bool
	}{
		{`{"current_step":3}`, "3", false},
		{`{"current_step":"review"}`, "review", false},
		{`{"current_step":null}`, "", true},
		{`{}`, "", true},
		{`{"current_step":"a\"b"}`, `a"b`, false},
		{`{"current_step":"caf\u00e9"}`, "café", false},
		{`{"current_step":2.5}`, "2.5", false},
	}
	for _, tt := range tests {
		var s Submission
		if err := json.Unmarshal([]byte(tt.body), &s); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.body, err)
		}
		if tt.isNil {
			if s.CurrentStep != nil {
				t.Errorf("%s: expected nil current_step, got %q", tt.body, *s.CurrentStep)
			}
			continue
		}
		if s.CurrentStep == nil || *s.CurrentStep != tt.want {
			t.Errorf("%s: expected current_step %q, got %v", tt.body, tt.want, s.CurrentStep)
		}
	}
}

func TestSubmission_UnmarshalJSON_CurrentStepRejectsOtherTypes(t *testing.T) {
	for _, body := range []string{
		`{"current_step":{"a":1}}`,
		`{"current_step":[1,2]}`,
		`{"current_step":true}`,
	} {
		var s Submission
		err := json.Unmarshal([]byte(body), &s)
		if err == nil {
			t.Errorf("%s: expected an error, got step %v", body, s.CurrentStep)
			continue
		}
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("%s: expected a validation error, got %v", body, err)
		}
	}
}

func TestSubmission_UnmarshalJSON_FormData(t *testing.T) {
	var s Submission
	body := `{"form_data":{"allergies":["peanuts"],"emergency_contact":{"phone":"555"}}}`
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec, ok := s.FormData["emergency_contact"].(map[string]interface{})
	if !ok || ec["phone"] != "555" {
		t.Errorf("unexpected form_data: %v", s.FormData)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	s := validSubmission()
	s.FirstName = "  Jane  "
	if err := s.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.FirstName != "Jane" {
		t.Errorf("expected trimmed first name, got %q", s.FirstName)
	}
	if s.SchemaVersion != DefaultSchemaVersion {
		t.Errorf("expected schema version %q, got %q", DefaultSchemaVersion, s.SchemaVersion)
	}
	if s.FormData == nil {
		t.Error("expected empty form_data to be set")
	}
}

func TestNormalize_KeepsSchemaVersion(t *testing.T) {
	s := validSubmission()
	s.SchemaVersion = "2.0"
	if err := s.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SchemaVersion != "2.0" {
		t.Errorf("expected 2.0, got %q", s.SchemaVersion)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	long := strings.Repeat("x", 101)
	phone := "+1 555 555 5555 ext 1234"
	tests := []struct {
		name   string
		mutate func(*Submission)
	}{
		{"missing external id", func(s *Submission) { s.PatientExternalID = " " }},
		{"empty first name", func(s *Submission) { s.FirstName = "" }},
		{"long last name", func(s *Submission) { s.LastName = long }},
		{"bad email", func(s *Submission) { s.Email = "not-an-email" }},
		{"display-name email", func(s *Submission) { s.Email = "Jane <jane@example.com>" }},
		{"bad dob", func(s *Submission) { s.DateOfBirth = "04/12/1990" }},
		{"impossible dob", func(s *Submission) { s.DateOfBirth = "1990-13-40" }},
		{"long phone", func(s *Submission) { s.Phone = &phone }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(s)
			err := s.Normalize()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestNormalize_UnicodeNameLength(t *testing.T) {
	s := validSubmission()
	s.FirstName = strings.Repeat("é", 100)
	if err := s.Normalize(); err != nil {
		t.Errorf("100 runes should be accepted: %v", err)
	}
}

func TestSubmission_Record(t *testing.T) {
	s := validSubmission()
	step := "2"
	s.CurrentStep = &step
	s.FormData = FormData{"a": "b"}
	_ = s.Normalize()

	draft := s.Record(StatusDraft)
	if draft.Status != StatusDraft {
		t.Errorf("expected draft status, got %q", draft.Status)
	}
	if draft.CurrentStep == nil || *draft.CurrentStep != "2" {
		t.Error("expected current_step to be kept on drafts")
	}
	if draft.Email != "jane@example.com" || draft.FormData["a"] != "b" {
		t.Errorf("unexpected record: %+v", draft)
	}

	completed := s.Record(StatusCompleted)
	if completed.CurrentStep != nil {
		t.Error("expected current_step to be dropped on completed records")
	}
}

func TestRecord_JSON(t *testing.T) {
	rec := validSubmission().Record(StatusDraft)
	rec.FormData = FormData{}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "patient_healthie_id", "first_name", "email", "status", "form_data"} {
		if _, ok := out[key]; !ok {
			t.Errorf("expected key %q in %s", key, b)
		}
	}
	if _, ok := out["submitted_at"]; ok {
		t.Error("expected submitted_at to be omitted on drafts")
	}
}

func TestFormDataCodec(t *testing.T) {
	raw, err := encodeFormData(nil)
	if err != nil || string(raw) != "{}" {
		t.Errorf("expected {}, got %s (%v)", raw, err)
	}
	fd, err := decodeFormData(nil)
	if err != nil || fd == nil || len(fd) != 0 {
		t.Errorf("expected empty map, got %v (%v)", fd, err)
	}
	if _, err := decodeFormData([]byte("[1,2]")); err == nil {
		t.Error("expected error for non-object form_data")
	}
}
