// Package docs registers the Swagger 2.0 description served at /swagger/*.
// It mirrors the handler annotations; keep both in sync when routes change.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/.well-known/jwks.json": {
            "get": {
                "description": "Public keys for verifying session tokens; empty when tokens are HMAC signed",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "JSON Web Key Set",
                "responses": {
                    "200": {
                        "description": "Key set",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "description": "Verify credentials and return a session token",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "User login",
                "parameters": [
                    {
                        "description": "Login credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.AuthResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Return the id and username behind the bearer token",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.MeResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/api/auth/register": {
            "post": {
                "description": "Register a new author and return a session token",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "User registration",
                "parameters": [
                    {
                        "description": "Registration data",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.RegisterRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.AuthResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "409": {"description": "Username already exists", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "description": "Check if the service is healthy",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Healthy", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Check the credential store and, when enabled, Redis",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Not ready", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/version": {
            "get": {
                "description": "Get service version and build information",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Version information",
                "responses": {
                    "200": {"description": "Version info", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "errors.ErrorCode": {
            "type": "string",
            "enum": [
                "VALIDATION_FAILED",
                "BAD_REQUEST",
                "INVALID_CREDENTIALS",
                "UNAUTHENTICATED",
                "USERNAME_EXISTS",
                "NOT_FOUND",
                "RATE_LIMITED",
                "INTERNAL_ERROR"
            ]
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"$ref": "#/definitions/errors.ErrorCode"},
                        "details": {"type": "array", "items": {"$ref": "#/definitions/errors.FieldError"}},
                        "message": {"type": "string"},
                        "trace_id": {"type": "string"}
                    }
                }
            }
        },
        "errors.FieldError": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "models.AuthResponse": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "display_name": {"type": "string"},
                "expires_in": {"type": "integer"},
                "token": {"type": "string"},
                "token_type": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.LoginRequest": {
            "type": "object",
            "properties": {
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.MeResponse": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.RegisterRequest": {
            "type": "object",
            "properties": {
                "display_name": {"type": "string"},
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the session token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CMS Auth API",
	Description:      "Registration, login and bearer-token session protection for the CMS",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
