// Package docs registers the Swagger spec consumed by gin-swagger. Hand
// written in the shape `swag init` normally generates, since the pipeline
// handler doc comments in internal/api aren't run through the swag CLI
// here — but the registration, not the codegen, is what gin-swagger
// actually needs at runtime.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Reports process liveness",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/meetings": {
            "get": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "description": "List meetings, newest first",
                "produces": ["application/json"],
                "tags": ["meetings"],
                "summary": "List meetings",
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "description": "Create a meeting record in UPLOADED",
                "produces": ["application/json"],
                "tags": ["meetings"],
                "summary": "Create meeting",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/api/v1/meetings/{id}": {
            "get": {
                "security": [{"BearerAuth": []}, {"ApiKeyAuth": []}],
                "description": "Fetch a meeting by ID",
                "produces": ["application/json"],
                "tags": ["meetings"],
                "summary": "Get meeting",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        },
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Meeting Transcription & Correction Pipeline API",
	Description:      "Thin operator API in front of the transcription/correction pipeline",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
