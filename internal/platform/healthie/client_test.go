package healthie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// fakeHealthie answers GraphQL requests with canned data keyed on a
// substring of the query text.
type fakeHealthie struct {
	t         *testing.T
	responses map[string]string

	mu   sync.Mutex
	last gqlRequest
}

func (f *fakeHealthie) lastRequest() gqlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeHealthie) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Basic test-key" {
		f.t.Errorf("unexpected Authorization header %q", got)
	}
	if got := r.Header.Get("AuthorizationSource"); got != "API" {
		f.t.Errorf("unexpected AuthorizationSource header %q", got)
	}
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("decode request: %v", err)
	}
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	for key, body := range f.responses {
		if strings.Contains(req.Query, key) {
			_, _ = w.Write([]byte(body))
			return
		}
	}
	_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"unexpected query"}]}`))
}

func newTestClient(t *testing.T, responses map[string]string) (*Client, *fakeHealthie) {
	t.Helper()
	fake := &fakeHealthie{t: t, responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		URL:          srv.URL,
		APIKey:       "test-key",
		Retries:      1,
		Timeout:      5 * time.Second,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	return c, fake
}

func TestClient_GetPatient(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"user(id": `{"data":{"user":{"id":"3642270","email":"jd@example.com","first_name":"John","last_name":"Doe"}}}`,
	})

	p, err := c.GetPatient(context.Background(), "3642270")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "3642270" || p.FirstName != "John" || p.LastName != "Doe" || p.Email != "jd@example.com" {
		t.Errorf("unexpected patient: %+v", p)
	}
	if fake.lastRequest().Variables["id"] != "3642270" {
		t.Errorf("expected id variable, got %v", fake.lastRequest().Variables)
	}
}

func TestClient_GetPatient_NotFound(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{"user(id": `{"data":{"user":null}}`})

	_, err := c.GetPatient(context.Background(), "nope")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClient_GraphQLErrorIsUpstream(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"user(id": `{"data":null,"errors":[{"message":"API Key is Invalid"}]}`,
	})

	_, err := c.GetPatient(context.Background(), "1")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected Upstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "API Key is Invalid") {
		t.Errorf("expected remote message to be kept, got %q", err.Error())
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	c := NewClient(Options{URL: "http://127.0.0.1:1", Logger: zerolog.Nop()})
	_, err := c.GetPatient(context.Background(), "1")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected Upstream, got %v", err)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"user":{"id":"1"}}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{
		URL: srv.URL, APIKey: "k", Retries: 3,
		RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond,
		Logger: zerolog.Nop(),
	})
	p, err := c.GetPatient(context.Background(), "1")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if p.ID != "1" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls and patient 1, got %d calls, %+v", atomic.LoadInt32(&calls), p)
	}
}

func TestClient_SearchPatients_DOBFilter(t *testing.T) {
	users := `{"data":{"users":[
		{"id":"1","email":"a@x.com","first_name":"Jane","last_name":"Doe","dob":"1990-04-12"},
		{"id":"2","email":"b@x.com","first_name":"Jane","last_name":"Doe","dob":"1985-01-01"},
		{"id":"3","email":"c@x.com","first_name":"Jane","last_name":"Doe","dob":null}
	]}}`
	c, fake := newTestClient(t, map[string]string{"users(": users})

	got, err := c.SearchPatients(context.Background(), PatientSearch{FirstName: "Jane", LastName: "Doe", DOB: "1990-04-12"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("expected only patient 1, got %+v", got)
	}
	if fake.lastRequest().Variables["keywords"] != "Jane Doe" {
		t.Errorf("expected keywords 'Jane Doe', got %v", fake.lastRequest().Variables["keywords"])
	}

	all, err := c.SearchPatients(context.Background(), PatientSearch{FirstName: "Jane", LastName: "Doe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 patients without dob, got %d", len(all))
	}
}

func TestClient_GetFormDefinition(t *testing.T) {
	form := `{"data":{"customModuleForm":{"id":"2215494","name":"Intake","custom_modules":[
		{"id":"1","label":"Are you currently taking an opioid medication?","mod_type":"horizontal_radio","required":true,"options":["1","2","3"]},
		{"id":"2","label":"Rate your stress 1-10","mod_type":"horizontal_radio","required":false,"options":["1",null,"10"]},
		{"id":"3","label":"Date of birth","mod_type":"date","required":true,"options":null},
		{"id":"4","label":"Notes","mod_type":"text","required":null,"options":"free"}
	]}}}`
	c, _ := newTestClient(t, map[string]string{"customModuleForm(": form})

	f, err := c.GetFormDefinition(context.Background(), "2215494")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Name != "Intake" || len(f.CustomModules) != 4 {
		t.Fatalf("unexpected form: %+v", f)
	}
	if opts := f.CustomModules[0].Options; len(opts) != 2 || opts[0] != "Yes" || opts[1] != "No" {
		t.Errorf("expected opioid question rewritten to Yes/No, got %v", opts)
	}
	if opts := f.CustomModules[1].Options; len(opts) != 2 || opts[0] != "1" || opts[1] != "10" {
		t.Errorf("expected stress scale untouched minus nulls, got %v", opts)
	}
	if f.CustomModules[2].Options != nil || f.CustomModules[3].Options != nil {
		t.Error("expected null and non-list options to be absent")
	}
	if f.CustomModules[3].Required {
		t.Error("expected null required to read as false")
	}
}

func TestClient_GetFormDefinition_NotFound(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{"customModuleForm(": `{"data":{"customModuleForm":null}}`})
	if _, err := c.GetFormDefinition(context.Background(), "x"); !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClient_SubmitFormAnswers(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"createFormAnswerGroup": `{"data":{"createFormAnswerGroup":{"form_answer_group":{"id":"fag-1","finished":true},"messages":[]}}}`,
	})

	answer := "1985-05-15"
	id, err := c.SubmitFormAnswers(context.Background(), FormAnswerGroupInput{
		CustomModuleFormID: "2215494",
		UserID:             "3642270",
		FormAnswers:        []FormAnswerInput{{CustomModuleID: "19056452", Answer: &answer}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "fag-1" {
		t.Errorf("expected fag-1, got %s", id)
	}

	input := fake.lastRequest().Variables["input"].(map[string]interface{})
	if input["finished"] != true || input["user_id"] != "3642270" || input["custom_module_form_id"] != "2215494" {
		t.Errorf("unexpected input: %v", input)
	}
	answers := input["form_answers"].([]interface{})
	first := answers[0].(map[string]interface{})
	if first["custom_module_id"] != "19056452" || first["answer"] != answer {
		t.Errorf("unexpected answer payload: %v", first)
	}
}

func TestClient_SubmitFormAnswers_Messages(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"createFormAnswerGroup": `{"data":{"createFormAnswerGroup":{"form_answer_group":null,"messages":[
			{"field":"user_id","message":"is invalid"},{"field":"form_answers","message":"can't be blank"}]}}}`,
	})

	_, err := c.SubmitFormAnswers(context.Background(), FormAnswerGroupInput{CustomModuleFormID: "f", UserID: "u"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
	want := "Validation errors: user_id: is invalid, form_answers: can't be blank"
	if got := err.(*apperr.Error).Detail(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestClient_SubmitFormAnswers_NoGroup(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"createFormAnswerGroup": `{"data":{"createFormAnswerGroup":{"form_answer_group":null,"messages":null}}}`,
	})

	_, err := c.SubmitFormAnswers(context.Background(), FormAnswerGroupInput{CustomModuleFormID: "f", UserID: "u"})
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected Upstream, got %v", err)
	}
}

func TestClient_FormAnswerGroups(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"formAnswerGroups(": `{"data":{"formAnswerGroups":[
			{"id":"a","created_at":"2024-01-01","custom_module_form":{"id":"f","name":"Intake"}},
			{"id":"b","created_at":"2024-01-02","custom_module_form":null}]}}`,
		"formAnswerGroup(": `{"data":{"formAnswerGroup":{"id":"a","finished":true,"form_answers":[]}}}`,
		"deleteFormAnswerGroup": `{"data":{"deleteFormAnswerGroup":{"messages":[]}}}`,
	})
	ctx := context.Background()

	ids, err := c.ListFormAnswerGroupsForPatient(ctx, "3642270")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected ids %v", ids)
	}
	if fake.lastRequest().Variables["userId"] != "3642270" {
		t.Errorf("expected userId variable, got %v", fake.lastRequest().Variables)
	}

	details, err := c.GetFormAnswerGroupDetails(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	group, ok := details["formAnswerGroup"].(map[string]interface{})
	if !ok || group["id"] != "a" {
		t.Errorf("expected raw passthrough, got %v", details)
	}

	if err := c.DeleteFormAnswerGroup(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	input := fake.lastRequest().Variables["input"].(map[string]interface{})
	if input["id"] != "a" {
		t.Errorf("expected delete input id a, got %v", input)
	}
}

func TestClient_DeleteFormAnswerGroup_Messages(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"deleteFormAnswerGroup": `{"data":{"deleteFormAnswerGroup":{"messages":[{"field":"id","message":"not allowed"}]}}}`,
	})

	err := c.DeleteFormAnswerGroup(context.Background(), "a")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Delete errors: id: not allowed") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
