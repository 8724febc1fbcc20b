package httpapi

// file: internal/httpapi/openapi.go

// openAPIDocument renders a minimal OpenAPI description of the service's
// surface, served at GET /?spec per spec §6.
func openAPIDocument(info ServiceInfo) map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   info.Name,
			"version": info.Version,
		},
		"paths": map[string]interface{}{
			"/v1/events": map[string]interface{}{
				"post": map[string]interface{}{
					"summary": "Submit one event or a batch of events.",
					"parameters": []map[string]interface{}{
						{"name": "hasty", "in": "query", "schema": map[string]string{"type": "boolean"}},
					},
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{},
						},
					},
					"responses": map[string]interface{}{
						"204": map[string]interface{}{"description": "All events accepted."},
						"207": map[string]interface{}{"description": "Partial success."},
						"400": map[string]interface{}{"description": "No events accepted."},
						"500": map[string]interface{}{"description": "Internal error."},
					},
				},
			},
			"/_info":         map[string]interface{}{"get": map[string]interface{}{"summary": "Service metadata."}},
			"/_info/name":    map[string]interface{}{"get": map[string]interface{}{"summary": "Service name."}},
			"/_info/version": map[string]interface{}{"get": map[string]interface{}{"summary": "Service version."}},
			"/_info/home":    map[string]interface{}{"get": map[string]interface{}{"summary": "Service home URL."}},
			"/robots.txt":    map[string]interface{}{"get": map[string]interface{}{"summary": "Disallow-all robots directive."}},
		},
	}
}
