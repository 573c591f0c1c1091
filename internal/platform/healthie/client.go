// Package healthie is the adapter for Healthie's GraphQL API: patient lookup,
// form definitions and form answer groups. All failures are returned as
// apperr errors of kind NotFound, Validation or Upstream.
package healthie

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/machinebox/graphql"
	"github.com/rs/zerolog"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

// API is the set of Healthie operations exposed over HTTP.
type API interface {
	GetPatient(ctx context.Context, id string) (*Patient, error)
	SearchPatients(ctx context.Context, search PatientSearch) ([]Patient, error)
	GetFormDefinition(ctx context.Context, formID string) (*CustomModuleForm, error)
	SubmitFormAnswers(ctx context.Context, input FormAnswerGroupInput) (string, error)
	GetFormAnswerGroupDetails(ctx context.Context, id string) (map[string]interface{}, error)
	ListFormAnswerGroupsForPatient(ctx context.Context, patientID string) ([]string, error)
	DeleteFormAnswerGroup(ctx context.Context, id string) error
}

// Options configures a Client. Retries is fixed for the life of the client.
type Options struct {
	URL          string
	APIKey       string
	Retries      int
	Timeout      time.Duration
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       zerolog.Logger
}

// Client talks to Healthie over GraphQL with a retrying HTTP transport.
type Client struct {
	gql    *graphql.Client
	apiKey string
	logger zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a client for opts.URL. Each request is sent with Basic
// authorization and the AuthorizationSource header Healthie expects for API
// keys.
func NewClient(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.Logger = retryLogger{l: opts.Logger}

	logger := opts.Logger.With().Str("component", "healthie").Logger()
	gql := graphql.NewClient(opts.URL, graphql.WithHTTPClient(rc.StandardClient()))
	gql.Log = func(s string) { logger.Trace().Msg(s) }

	return &Client{gql: gql, apiKey: opts.APIKey, logger: logger}
}

// run executes one GraphQL operation. Transport and GraphQL-level errors
// become Upstream failures prefixed with what.
func (c *Client) run(ctx context.Context, op, what, query string, vars map[string]interface{}, resp interface{}) error {
	if c.apiKey == "" {
		return apperr.Upstreamf(op, "Healthie API key is not configured")
	}
	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("AuthorizationSource", "API")

	start := time.Now()
	err := c.gql.Run(ctx, req, resp)
	c.logger.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Err(err).Msg("graphql call")
	if err != nil {
		return apperr.Upstream(op, fmt.Errorf("%s: %w", what, err))
	}
	return nil
}

// GetPatient fetches a single user by id.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var resp struct {
		User *userNode `json:"user"`
	}
	if err := c.run(ctx, "healthie.get_patient", "Error fetching patient", queryUser,
		map[string]interface{}{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, apperr.NotFound("healthie.get_patient", "Patient not found")
	}
	p := resp.User.patient()
	return &p, nil
}

// SearchPatients runs a keyword search on the patient's name and keeps the
// results whose date of birth equals search.DOB. An empty DOB keeps every
// result.
func (c *Client) SearchPatients(ctx context.Context, search PatientSearch) ([]Patient, error) {
	var resp struct {
		Users []userNode `json:"users"`
	}
	if err := c.run(ctx, "healthie.search_patients", "Error searching patients", queryUsers,
		map[string]interface{}{"keywords": search.Keywords()}, &resp); err != nil {
		return nil, err
	}
	return filterByDOB(resp.Users, search.DOB), nil
}

func filterByDOB(users []userNode, dob string) []Patient {
	out := make([]Patient, 0, len(users))
	for _, u := range users {
		if dob == "" || (u.DOB != nil && *u.DOB == dob) {
			out = append(out, u.patient())
		}
	}
	return out
}

// GetFormDefinition fetches a form and applies the yes/no option rewrite.
func (c *Client) GetFormDefinition(ctx context.Context, formID string) (*CustomModuleForm, error) {
	var resp struct {
		CustomModuleForm *customModuleFormNode `json:"customModuleForm"`
	}
	if err := c.run(ctx, "healthie.get_form", "Error fetching form", queryCustomModuleForm,
		map[string]interface{}{"id": formID}, &resp); err != nil {
		return nil, err
	}
	if resp.CustomModuleForm == nil {
		return nil, apperr.NotFound("healthie.get_form", "Form not found")
	}
	form := resp.CustomModuleForm.form()
	ApplyYesNoOverrides(form)
	return form, nil
}

// SubmitFormAnswers creates a finished form answer group and returns its id.
func (c *Client) SubmitFormAnswers(ctx context.Context, input FormAnswerGroupInput) (string, error) {
	const op = "healthie.submit_form"

	answers := make([]map[string]interface{}, 0, len(input.FormAnswers))
	for _, a := range input.FormAnswers {
		answers = append(answers, map[string]interface{}{
			"custom_module_id": a.CustomModuleID,
			"answer":           a.Answer,
		})
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"custom_module_form_id": input.CustomModuleFormID,
			"user_id":               input.UserID,
			"finished":              true,
			"form_answers":          answers,
		},
	}

	var resp struct {
		CreateFormAnswerGroup struct {
			FormAnswerGroup *formAnswerGroupNode `json:"form_answer_group"`
			Messages        []fieldMessage       `json:"messages"`
		} `json:"createFormAnswerGroup"`
	}
	if err := c.run(ctx, op, "Error creating form answer group", mutationCreateFormAnswerGroup, vars, &resp); err != nil {
		return "", err
	}

	result := resp.CreateFormAnswerGroup
	if len(result.Messages) > 0 {
		return "", apperr.Validation(op, "Validation errors: %s", joinMessages(result.Messages))
	}
	if result.FormAnswerGroup == nil {
		return "", apperr.Upstreamf(op, "Form submission failed - no form_answer_group returned")
	}
	c.logger.Info().
		Str("form_answer_group_id", result.FormAnswerGroup.ID).
		Bool("finished", result.FormAnswerGroup.Finished).
		Msg("form answer group created")
	return result.FormAnswerGroup.ID, nil
}

// GetFormAnswerGroupDetails returns Healthie's response as-is.
func (c *Client) GetFormAnswerGroupDetails(ctx context.Context, id string) (map[string]interface{}, error) {
	resp := map[string]interface{}{}
	if err := c.run(ctx, "healthie.get_form_details", "Error fetching form answer group details",
		queryFormAnswerGroup, map[string]interface{}{"id": id}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListFormAnswerGroupsForPatient returns the ids of the patient's form answer
// groups in the order Healthie returns them.
func (c *Client) ListFormAnswerGroupsForPatient(ctx context.Context, patientID string) ([]string, error) {
	var resp struct {
		FormAnswerGroups []formAnswerGroupSummary `json:"formAnswerGroups"`
	}
	if err := c.run(ctx, "healthie.list_forms", "Error fetching form answer groups", queryFormAnswerGroups,
		map[string]interface{}{"userId": patientID}, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.FormAnswerGroups))
	for _, g := range resp.FormAnswerGroups {
		ev := c.logger.Debug().Str("patient_id", patientID).Str("form_answer_group_id", g.ID).Str("created_at", g.CreatedAt)
		if g.CustomModuleForm != nil {
			ev = ev.Str("form", g.CustomModuleForm.Name)
		}
		ev.Msg("form answer group")
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// DeleteFormAnswerGroup removes a form answer group.
func (c *Client) DeleteFormAnswerGroup(ctx context.Context, id string) error {
	const op = "healthie.delete_form"
	var resp struct {
		DeleteFormAnswerGroup struct {
			Messages []fieldMessage `json:"messages"`
		} `json:"deleteFormAnswerGroup"`
	}
	vars := map[string]interface{}{"input": map[string]interface{}{"id": id}}
	if err := c.run(ctx, op, "Error deleting form answer group", mutationDeleteFormAnswerGroup, vars, &resp); err != nil {
		return err
	}
	if msgs := resp.DeleteFormAnswerGroup.Messages; len(msgs) > 0 {
		return apperr.Validation(op, "Delete errors: %s", joinMessages(msgs))
	}
	return nil
}

// retryLogger routes retryablehttp's leveled logs into zerolog.
type retryLogger struct {
	l zerolog.Logger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Error().Fields(kv).Msg(msg) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warn().Fields(kv).Msg(msg) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Info().Fields(kv).Msg(msg) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debug().Fields(kv).Msg(msg) }

var _ retryablehttp.LeveledLogger = retryLogger{}
