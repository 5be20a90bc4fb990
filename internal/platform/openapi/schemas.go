package openapi

func object(required []string, props map[string]interface{}) map[string]interface{} {
	o := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func str(format string) map[string]interface{} {
	s := map[string]interface{}{"type": "string"}
	if format != "" {
		s["format"] = format
	}
	return s
}

func bounded(max int) map[string]interface{} {
	return map[string]interface{}{"type": "string", "maxLength": max}
}

func amount() map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"minimum":     0,
		"maximum":     99999999.99,
		"description": "Two-decimal currency amount; numeric strings are accepted",
	}
}

func schemas() map[string]interface{} {
	appointmentFields := map[string]interface{}{
		"patient_name":     bounded(255),
		"test_name":        bounded(255),
		"branch_location":  bounded(255),
		"appointment_date": map[string]interface{}{"type": "string", "description": "RFC 3339 timestamp or YYYY-MM-DD"},
		"amount":           amount(),
		"advance_amount":   amount(),
		"pro_details":      map[string]interface{}{"type": "string", "nullable": true},
		"contact_number":   bounded(20),
	}
	input := object([]string{"patient_name", "test_name", "branch_location", "appointment_date", "amount", "contact_number"},
		merge(appointmentFields, map[string]interface{}{
			"agent_id": map[string]interface{}{"type": "string", "format": "uuid", "description": "Honored for admins only"},
		}))

	return map[string]interface{}{
		"Error": object([]string{"message"}, map[string]interface{}{
			"message": str(""),
		}),
		"Message": object([]string{"message"}, map[string]interface{}{
			"message": str(""),
		}),
		"LoginRequest": object([]string{"email", "password"}, map[string]interface{}{
			"email":    str("email"),
			"password": str("password"),
		}),
		"LoginResponse": object(nil, map[string]interface{}{
			"access_token": str(""),
			"expires_at":   str("date-time"),
			"user":         ref("User"),
		}),
		"User": object(nil, map[string]interface{}{
			"id":         str("uuid"),
			"name":       str(""),
			"email":      str("email"),
			"role":       map[string]interface{}{"type": "string", "enum": []string{"admin", "agent"}},
			"is_active":  map[string]interface{}{"type": "boolean"},
			"created_at": str("date-time"),
		}),
		"CreateUserRequest": object([]string{"name", "email", "password"}, map[string]interface{}{
			"name":     str(""),
			"email":    str("email"),
			"password": map[string]interface{}{"type": "string", "minLength": 6},
		}),
		"StatusRequest": object([]string{"is_active"}, map[string]interface{}{
			"is_active": map[string]interface{}{"type": "boolean"},
		}),
		"AppointmentInput": input,
		"AppointmentPatch": object(nil, appointmentFields),
		"Appointment": object(nil, merge(appointmentFields, map[string]interface{}{
			"id":             str("uuid"),
			"balance_amount": map[string]interface{}{"type": "number", "description": "amount minus advance_amount"},
			"agent_id":       str("uuid"),
			"agent":          ref("AgentSummary"),
			"created_at":     str("date-time"),
			"updated_at":     str("date-time"),
		})),
		"AgentSummary": object(nil, map[string]interface{}{
			"id":    str("uuid"),
			"name":  str(""),
			"email": str("email"),
			"role":  str(""),
		}),
		"AppointmentPage": object(nil, map[string]interface{}{
			"data":       map[string]interface{}{"type": "array", "items": ref("Appointment")},
			"total":      map[string]interface{}{"type": "integer"},
			"page":       map[string]interface{}{"type": "integer"},
			"totalPages": map[string]interface{}{"type": "integer"},
		}),
		"Suggestion": object(nil, map[string]interface{}{
			"text": str(""),
			"type": map[string]interface{}{"type": "string", "enum": []string{"name", "phone"}},
		}),
		"ActivityLog": object(nil, map[string]interface{}{
			"id":             str("uuid"),
			"appointment_id": str("uuid"),
			"agent_id":       str("uuid"),
			"action":         map[string]interface{}{"type": "string", "enum": []string{"CREATE", "UPDATE", "DELETE"}},
			"old_data":       map[string]interface{}{"type": "object", "nullable": true},
			"new_data":       map[string]interface{}{"type": "object"},
			"created_at":     str("date-time"),
		}),
		"ExportRequest": object([]string{"recipients"}, map[string]interface{}{
			"recipients": map[string]interface{}{"type": "array", "items": str("email")},
			"startDate":  str(""),
			"endDate":    str(""),
		}),
		"ReportOutcome": object(nil, map[string]interface{}{
			"message": str(""),
			"count":   map[string]interface{}{"type": "integer"},
			"sentTo":  map[string]interface{}{"type": "array", "items": str("email")},
		}),
		"ReportObject": object(nil, map[string]interface{}{
			"key":          str(""),
			"file_name":    str(""),
			"content_type": str(""),
			"size":         map[string]interface{}{"type": "integer"},
			"tenant_id":    str(""),
			"category":     str(""),
			"hash":         str(""),
			"created_at":   str("date-time"),
		}),
		"ReportList": object(nil, map[string]interface{}{
			"items": map[string]interface{}{"type": "array", "items": ref("ReportObject")},
			"total": map[string]interface{}{"type": "integer"},
		}),
	}
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Appointment API - Swagger UI</title>
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
