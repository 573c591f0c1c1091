// Package openapi serves an OpenAPI 3.0 description of the intake and
// Healthie routes together with a Swagger UI page.
package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Operation describes one route.
type Operation struct {
	Method      string
	Path        string // echo syntax, e.g. /api/intake/draft/:externalId
	Summary     string
	Tag         string
	Query       []string
	RequestBody string // component schema name
	Response    string // component schema name; "" means a free-form object
	ResponseArr bool
	NotFound    bool
}

// Generator builds the OpenAPI document from a list of operations.
type Generator struct {
	title   string
	version string
	baseURL string
	ops     []Operation
}

// NewGenerator creates a generator preloaded with the service's routes.
func NewGenerator(title, version, baseURL string) *Generator {
	ops := make([]Operation, len(defaultOperations))
	copy(ops, defaultOperations)
	return &Generator{title: title, version: version, baseURL: baseURL, ops: ops}
}

// AddOperation registers an additional route.
func (g *Generator) AddOperation(op Operation) {
	g.ops = append(g.ops, op)
}

var defaultOperations = []Operation{
	{Method: http.MethodPost, Path: "/api/intake/draft", Summary: "Save or overwrite the patient's draft", Tag: "intake", RequestBody: "IntakeSubmission", Response: "DraftSaved"},
	{Method: http.MethodGet, Path: "/api/intake/draft/:externalId", Summary: "Get the patient's draft", Tag: "intake", Response: "Intake", NotFound: true},
	{Method: http.MethodDelete, Path: "/api/intake/draft/:externalId", Summary: "Discard the patient's drafts", Tag: "intake", Response: "Discarded"},
	{Method: http.MethodGet, Path: "/api/intake/completed/:externalId", Summary: "Get the latest completed intake", Tag: "intake", Response: "IntakeSummary", NotFound: true},
	{Method: http.MethodPost, Path: "/api/intake/submit", Summary: "Submit an intake, converting any draft", Tag: "intake", RequestBody: "IntakeSubmission", Response: "Submitted"},
	{Method: http.MethodGet, Path: "/api/intake/list", Summary: "List recent intakes", Tag: "intake", Query: []string{"limit"}, Response: "Listing"},
	{Method: http.MethodGet, Path: "/api/intake/search", Summary: "Find intakes by a form_data field", Tag: "intake", Query: []string{"path", "value"}, Response: "Intake", ResponseArr: true},
	{Method: http.MethodGet, Path: "/api/intake/patient/:email", Summary: "Find intakes by email", Tag: "intake", Query: []string{"limit"}, Response: "Intake", ResponseArr: true},
	{Method: http.MethodGet, Path: "/api/intake/:id", Summary: "Get an intake by id", Tag: "intake", Response: "Intake", NotFound: true},
	{Method: http.MethodDelete, Path: "/api/intake/:id", Summary: "Delete an intake by id", Tag: "intake", Response: "Success", NotFound: true},

	{Method: http.MethodGet, Path: "/api/healthie/patients/:id", Summary: "Get a Healthie patient", Tag: "healthie", Response: "Patient", NotFound: true},
	{Method: http.MethodPost, Path: "/api/healthie/patients/search", Summary: "Search patients by name and date of birth", Tag: "healthie", RequestBody: "PatientSearch", Response: "Patient", ResponseArr: true},
	{Method: http.MethodGet, Path: "/api/healthie/patients/:id/forms", Summary: "List a patient's form answer group ids", Tag: "healthie", Response: "Ids"},
	{Method: http.MethodGet, Path: "/api/healthie/forms/:id", Summary: "Get a form definition", Tag: "healthie", Response: "CustomModuleForm", NotFound: true},
	{Method: http.MethodPost, Path: "/api/healthie/forms/submit", Summary: "Submit form answers to Healthie", Tag: "healthie", RequestBody: "FormAnswerGroupInput", Response: "FormSubmitted"},
	{Method: http.MethodGet, Path: "/api/healthie/forms/details/:id", Summary: "Get a form answer group as returned by Healthie", Tag: "healthie"},
	{Method: http.MethodDelete, Path: "/api/healthie/forms/:id", Summary: "Delete a form answer group", Tag: "healthie", Response: "Success"},

	{Method: http.MethodGet, Path: "/health", Summary: "Storage and Healthie status", Tag: "health"},
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]map[string]interface{})
	for _, op := range g.ops {
		p := toOpenAPIPath(op.Path)
		if paths[p] == nil {
			paths[p] = make(map[string]interface{})
		}
		paths[p][strings.ToLower(op.Method)] = g.buildOperation(op)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
		},
	}
}

func (g *Generator) buildOperation(op Operation) map[string]interface{} {
	var params []map[string]interface{}
	for _, name := range pathParams(op.Path) {
		params = append(params, map[string]interface{}{
			"name": name, "in": "path", "required": true, "schema": map[string]string{"type": "string"},
		})
	}
	for _, name := range op.Query {
		params = append(params, map[string]interface{}{
			"name": name, "in": "query", "required": false, "schema": map[string]string{"type": "string"},
		})
	}

	responses := map[string]interface{}{
		"200":     buildResponse("OK", op.Response, op.ResponseArr),
		"default": buildResponse("Error", "Error", false),
	}
	if op.NotFound {
		responses["404"] = buildResponse("Not found", "Error", false)
	}

	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(op),
		"tags":        []string{op.Tag},
		"responses":   responses,
	}
	if len(params) > 0 {
		out["parameters"] = params
	}
	if op.RequestBody != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref(op.RequestBody)},
			},
		}
	}
	return out
}

func buildResponse(description, schema string, array bool) map[string]interface{} {
	var s map[string]interface{}
	switch {
	case schema == "":
		s = map[string]interface{}{"type": "object"}
	case array:
		s = map[string]interface{}{"type": "array", "items": ref(schema)}
	default:
		s = ref(schema)
	}
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": s},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

// toOpenAPIPath turns /a/:id into /a/{id}.
func toOpenAPIPath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + part[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func pathParams(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ":") {
			out = append(out, part[1:])
		}
	}
	return out
}

// operationID derives a stable id such as "getApiIntakeDraftByExternalId".
func operationID(op Operation) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(op.Method))
	for _, part := range strings.Split(op.Path, "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ":") {
			b.WriteString("By")
			part = part[1:]
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

// ── Component schemas ──────────────────────────────────────────────────

func str() map[string]interface{}  { return map[string]interface{}{"type": "string"} }
func strN() map[string]interface{} { return map[string]interface{}{"type": "string", "nullable": true} }
func boolean() map[string]interface{} {
	return map[string]interface{}{"type": "boolean"}
}
func integer() map[string]interface{} {
	return map[string]interface{}{"type": "integer"}
}
func dateTime(nullable bool) map[string]interface{} {
	return map[string]interface{}{"type": "string", "format": "date-time", "nullable": nullable}
}
func object(required []string, props map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out
}

func componentSchemas() map[string]interface{} {
	demographics := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{
			"patient_external_id": str(),
			"first_name":          str(),
			"last_name":           str(),
			"email":               map[string]interface{}{"type": "string", "format": "email"},
			"phone":               strN(),
			"date_of_birth":       map[string]interface{}{"type": "string", "format": "date"},
			"schema_version":      str(),
			"status":              map[string]interface{}{"type": "string", "enum": []string{"draft", "completed"}},
			"form_data":           map[string]interface{}{"type": "object", "additionalProperties": true},
			"current_step":        strN(),
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}

	return map[string]interface{}{
		"Error":   object([]string{"detail"}, map[string]interface{}{"detail": str()}),
		"Success": object([]string{"success"}, map[string]interface{}{"success": boolean()}),
		"Ids":     map[string]interface{}{"type": "array", "items": str()},

		"IntakeSubmission": object(
			[]string{"patient_external_id", "first_name", "last_name", "email", "date_of_birth"},
			demographics(nil),
		),
		"Intake": object(nil, demographics(map[string]interface{}{
			"id":              map[string]interface{}{"type": "string", "format": "uuid"},
			"created_at":      dateTime(false),
			"updated_at":      dateTime(true),
			"submitted_at":    dateTime(true),
			"last_updated_at": dateTime(false),
		})),
		"IntakeSummary": object(nil, map[string]interface{}{
			"id":           map[string]interface{}{"type": "string", "format": "uuid"},
			"status":       str(),
			"submitted_at": dateTime(true),
			"form_data":    map[string]interface{}{"type": "object", "additionalProperties": true},
		}),
		"DraftSaved": object(nil, map[string]interface{}{
			"draft_id":        map[string]interface{}{"type": "string", "format": "uuid"},
			"status":          str(),
			"last_updated_at": dateTime(false),
		}),
		"Submitted": object(nil, map[string]interface{}{
			"intake_id": map[string]interface{}{"type": "string", "format": "uuid"},
			"status":    str(),
			"message":   str(),
		}),
		"Discarded": object(nil, map[string]interface{}{
			"success":       boolean(),
			"deleted_count": integer(),
		}),
		"Listing": object(nil, map[string]interface{}{
			"total_count":    integer(),
			"returned_count": integer(),
			"intakes":        map[string]interface{}{"type": "array", "items": ref("Intake")},
		}),

		"Patient": object(nil, map[string]interface{}{
			"id": str(), "email": str(), "firstName": str(), "lastName": str(),
		}),
		"PatientSearch": object(nil, map[string]interface{}{
			"firstName": str(), "lastName": str(),
			"dob": map[string]interface{}{"type": "string", "format": "date"},
		}),
		"CustomModule": object(nil, map[string]interface{}{
			"id": str(), "label": str(), "modType": str(), "required": boolean(),
			"options": map[string]interface{}{"type": "array", "items": str(), "nullable": true},
		}),
		"CustomModuleForm": object(nil, map[string]interface{}{
			"id": str(), "name": str(),
			"customModules": map[string]interface{}{"type": "array", "items": ref("CustomModule")},
		}),
		"FormAnswerInput": object([]string{"customModuleId"}, map[string]interface{}{
			"customModuleId": str(), "answer": strN(),
		}),
		"FormAnswerGroupInput": object([]string{"customModuleFormId", "userId"}, map[string]interface{}{
			"customModuleFormId": str(),
			"userId":             str(),
			"formAnswers":        map[string]interface{}{"type": "array", "items": ref("FormAnswerInput")},
		}),
		"FormSubmitted": object(nil, map[string]interface{}{
			"formAnswerGroupId": str(), "success": boolean(),
		}),
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Healthie Intake API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	spec := g.GenerateSpec()
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
