package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academy Pulse API",
        "description": "Risk scoring, alerting and enrollment funnel analytics for academy operations",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Staff authentication"},
        {"name": "Risk", "description": "Risk score reads"},
        {"name": "Alerts", "description": "Risk alert list and lifecycle"},
        {"name": "Funnel", "description": "Enrollment funnel analytics"},
        {"name": "Batch", "description": "Full-population batch runs"},
        {"name": "Configuration", "description": "Versioned scoring configuration"},
        {"name": "Exports", "description": "Risk roster file exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue tokens",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/risk/scores": {
            "get": {
                "tags": ["Risk"],
                "summary": "List latest risk scores, worst first",
                "parameters": [
                    {"name": "level", "in": "query", "type": "string", "enum": ["low", "medium", "high"]},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Scores", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/risk/students/{id}": {
            "get": {
                "tags": ["Risk"],
                "summary": "Risk detail for one student",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "historyLimit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Detail", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Student not found"}
                }
            }
        },
        "/api/v1/risk/config": {
            "get": {
                "tags": ["Configuration"],
                "summary": "Current scoring configuration",
                "responses": {
                    "200": {"description": "Configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Configuration"],
                "summary": "Update one allow-listed configuration key",
                "responses": {
                    "200": {"description": "New configuration version", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Key not allowed or invalid value"}
                }
            }
        },
        "/api/v1/risk/config/{version}": {
            "get": {
                "tags": ["Configuration"],
                "summary": "Historical configuration version",
                "parameters": [
                    {"name": "version", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {
                    "200": {"description": "Configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Version not found"}
                }
            }
        },
        "/api/v1/alerts": {
            "get": {
                "tags": ["Alerts"],
                "summary": "List risk alerts",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Alerts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/alerts/{id}/action": {
            "patch": {
                "tags": ["Alerts"],
                "summary": "Apply a lifecycle action to an alert",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Updated alert", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed"}
                }
            }
        },
        "/api/v1/funnel/events": {
            "post": {
                "tags": ["Funnel"],
                "summary": "Append a funnel stage event",
                "responses": {
                    "201": {"description": "Created event", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/funnel/bottlenecks": {
            "get": {
                "tags": ["Funnel"],
                "summary": "Per-stage dropout aggregates, worst first",
                "responses": {
                    "200": {"description": "Bottlenecks", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/funnel/transitions": {
            "get": {
                "tags": ["Funnel"],
                "summary": "Stage transition aggregates",
                "responses": {
                    "200": {"description": "Transitions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/funnel/cohorts": {
            "get": {
                "tags": ["Funnel"],
                "summary": "Calendar-month cohort conversion",
                "responses": {
                    "200": {"description": "Cohorts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/batch/risk-scores": {
            "post": {
                "tags": ["Batch"],
                "summary": "Recompute risk scores for all active students",
                "responses": {
                    "200": {"description": "Run summary, returned even on partial failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A run is already in progress"}
                }
            }
        },
        "/api/v1/batch/funnel-refresh": {
            "post": {
                "tags": ["Batch"],
                "summary": "Recompute funnel day counts",
                "responses": {
                    "200": {"description": "Run summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A run is already in progress"}
                }
            }
        },
        "/api/v1/exports/risk-roster": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export the current risk roster",
                "responses": {
                    "201": {"description": "Signed download reference", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export via signed token",
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
