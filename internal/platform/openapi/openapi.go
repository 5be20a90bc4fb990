// Package openapi serves the OpenAPI 3.0 description of the appointment API
// and a Swagger UI page that renders it.
package openapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Generator struct {
	version string
	baseURL string
}

func NewGenerator(version, baseURL string) *Generator {
	return &Generator{version: version, baseURL: baseURL}
}

// RegisterRoutes mounts GET /openapi.json and GET /docs on api.
func (g *Generator) RegisterRoutes(api *echo.Group) {
	api.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	api.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

// GenerateSpec produces the OpenAPI document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Diagnostic Center Appointment API",
			"version":     g.version,
			"description": "Multi-tenant appointment management with audit logging and daily reports.",
		},
		"servers": []map[string]interface{}{
			{"url": g.baseURL + "/api/v1"},
		},
		"security": []map[string]interface{}{
			{"bearerAuth": []string{}},
		},
		"paths": g.paths(),
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"parameters": map[string]interface{}{
				"TenantID": map[string]interface{}{
					"name":        "X-Tenant-ID",
					"in":          "header",
					"description": "Tenant identifier; the token's tenant claim takes precedence.",
					"schema":      map[string]interface{}{"type": "string"},
				},
			},
			"schemas": schemas(),
		},
	}
}

func (g *Generator) paths() map[string]interface{} {
	idParam := pathParam("id", "uuid")
	return map[string]interface{}{
		"/auth/login": map[string]interface{}{
			"post": operation("login", "Sign in", "auth", nil,
				jsonBody("LoginRequest"), response("200", "Token and user", "LoginResponse"),
				"400", "401", "429").public(),
		},
		"/auth/me": map[string]interface{}{
			"get": operation("me", "Current user", "auth", nil, nil,
				response("200", "The signed-in user", "User"), "401"),
		},
		"/appointments": map[string]interface{}{
			"get": operation("listAppointments", "List appointments, newest first", "appointments",
				[]map[string]interface{}{
					queryParam("search", "string", "Case-insensitive match on patient name or contact number"),
					queryParam("startDate", "string", "Lower creation bound (RFC 3339 or YYYY-MM-DD)"),
					queryParam("endDate", "string", "Upper creation bound; a bare date covers the whole day"),
					queryParam("page", "integer", "Page number, default 1"),
					queryParam("limit", "integer", "Page size, default 10"),
				}, nil, response("200", "A page of appointments", "AppointmentPage"), "400", "401"),
			"post": operation("createAppointment", "Create an appointment", "appointments", nil,
				jsonBody("AppointmentInput"), response("201", "The saved appointment", "Appointment"),
				"400", "401", "403"),
		},
		"/appointments/search-suggestions": map[string]interface{}{
			"get": operation("searchSuggestions", "Suggest patient names and contact numbers", "appointments",
				[]map[string]interface{}{queryParam("query", "string", "At least two characters")},
				nil, arrayResponse("200", "Suggestions", "Suggestion"), "401"),
		},
		"/appointments/{id}": map[string]interface{}{
			"get": operation("getAppointment", "Get an appointment", "appointments",
				[]map[string]interface{}{idParam}, nil, response("200", "The appointment", "Appointment"),
				"400", "401", "404"),
			"put": operation("updateAppointment", "Partially update an appointment", "appointments",
				[]map[string]interface{}{idParam}, jsonBody("AppointmentPatch"),
				response("200", "The updated appointment", "Appointment"), "400", "401", "404"),
			"delete": operation("deleteAppointment", "Delete an appointment and its history (admin)", "appointments",
				[]map[string]interface{}{idParam}, nil, response("200", "Deleted", "Message"),
				"401", "403", "404"),
		},
		"/admin/agents": map[string]interface{}{
			"get": operation("listAgents", "List agents", "users", nil, nil,
				arrayResponse("200", "Agents", "User"), "401", "403"),
			"post": operation("createAgent", "Create an agent", "users", nil, jsonBody("CreateUserRequest"),
				response("201", "The new agent", "User"), "400", "401", "403", "409"),
		},
		"/admin/agents/{id}/status": map[string]interface{}{
			"put": operation("setAgentStatus", "Activate or deactivate a user", "users",
				[]map[string]interface{}{idParam}, jsonBody("StatusRequest"),
				response("200", "The updated user", "User"), "400", "401", "403", "404"),
		},
		"/admin/admins": map[string]interface{}{
			"get": operation("listAdmins", "List admins", "users", nil, nil,
				arrayResponse("200", "Admins", "User"), "401", "403"),
			"post": operation("createAdmin", "Create an admin", "users", nil, jsonBody("CreateUserRequest"),
				response("201", "The new admin", "User"), "400", "401", "403", "409"),
		},
		"/admin/activity-logs": map[string]interface{}{
			"get": operation("listActivityLogs", "All activity, newest first", "activity", nil, nil,
				arrayResponse("200", "Activity log entries", "ActivityLog"), "401", "403"),
		},
		"/admin/activity-logs/appointment/{id}": map[string]interface{}{
			"get": operation("appointmentActivity", "History of one appointment", "activity",
				[]map[string]interface{}{idParam}, nil,
				arrayResponse("200", "Activity log entries", "ActivityLog"), "400", "401", "403"),
		},
		"/admin/activity-logs/agent/{id}": map[string]interface{}{
			"get": operation("agentActivity", "Actions taken by one user", "activity",
				[]map[string]interface{}{idParam}, nil,
				arrayResponse("200", "Activity log entries", "ActivityLog"), "400", "401", "403"),
		},
		"/admin/jobs/trigger-report": map[string]interface{}{
			"post": operation("triggerReport", "Generate and mail today's report now", "reports", nil, nil,
				response("200", "Report outcome", "ReportOutcome"), "401", "403"),
		},
		"/admin/jobs/export-email": map[string]interface{}{
			"post": operation("exportEmail", "Mail a CSV export for a date range", "reports", nil,
				jsonBody("ExportRequest"), response("200", "Report outcome", "ReportOutcome"),
				"400", "401", "403"),
		},
		"/admin/jobs/export-csv": map[string]interface{}{
			"get": csvOperation(),
		},
		"/admin/reports": map[string]interface{}{
			"get": operation("listReports", "List archived report files", "reports", nil, nil,
				response("200", "Archived objects", "ReportList"), "401", "403"),
		},
		"/admin/reports/{category}/{file}": map[string]interface{}{
			"get": archiveDownload(),
		},
	}
}

// op is an OpenAPI operation object.
type op map[string]interface{}

// public clears the inherited bearer requirement.
func (o op) public() op {
	o["security"] = []map[string]interface{}{}
	return o
}

func operation(id, summary, tag string, params []map[string]interface{}, body map[string]interface{}, ok map[string]interface{}, errorCodes ...string) op {
	responses := map[string]interface{}{}
	for code, r := range ok {
		responses[code] = r
	}
	for _, code := range errorCodes {
		responses[code] = map[string]interface{}{
			"description": http.StatusText(statusCode(code)),
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref("Error")},
			},
		}
	}
	o := op{
		"operationId": id,
		"summary":     summary,
		"tags":        []string{tag},
		"parameters":  append([]map[string]interface{}{{"$ref": "#/components/parameters/TenantID"}}, params...),
		"responses":   responses,
	}
	if body != nil {
		o["requestBody"] = body
	}
	return o
}

func csvOperation() op {
	o := operation("exportCSV", "Download a CSV export", "reports",
		[]map[string]interface{}{
			queryParam("startDate", "string", "Lower creation bound"),
			queryParam("endDate", "string", "Upper creation bound"),
		}, nil, nil, "400", "401", "403")
	o["responses"].(map[string]interface{})["200"] = map[string]interface{}{
		"description": "CSV file",
		"content": map[string]interface{}{
			"text/csv": map[string]interface{}{
				"schema": map[string]interface{}{"type": "string", "format": "binary"},
			},
		},
	}
	return o
}

func archiveDownload() op {
	o := operation("downloadReport", "Download an archived report file", "reports",
		[]map[string]interface{}{pathParam("category", ""), pathParam("file", "")},
		nil, nil, "401", "403", "404")
	o["responses"].(map[string]interface{})["200"] = map[string]interface{}{
		"description": "CSV file",
		"content": map[string]interface{}{
			"text/csv": map[string]interface{}{
				"schema": map[string]interface{}{"type": "string", "format": "binary"},
			},
		},
	}
	return o
}

func statusCode(code string) int {
	n, _ := strconv.Atoi(code)
	return n
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func jsonBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func response(code, description, schema string) map[string]interface{} {
	return map[string]interface{}{
		code: map[string]interface{}{
			"description": description,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": ref(schema)},
			},
		},
	}
}

func arrayResponse(code, description, schema string) map[string]interface{} {
	return map[string]interface{}{
		code: map[string]interface{}{
			"description": description,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{"type": "array", "items": ref(schema)},
				},
			},
		},
	}
}

func pathParam(name, format string) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"in":       "path",
		"required": true,
		"schema":   str(format),
	}
}

func queryParam(name, typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]interface{}{"type": typ},
	}
}
