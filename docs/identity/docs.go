// Package identity registers the identity service's OpenAPI document with
// swag. Importing it for side effects makes /swagger/doc.json serve it.
package identity

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
        "/api/auth/register": {"post": {"tags": ["auth"], "summary": "Register a new account",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.RegisterRequest"}}],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/login": {"post": {"tags": ["auth"], "summary": "Login",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.LoginRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/logout": {"get": {"tags": ["auth"], "summary": "Logout",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}}}}},
        "/api/auth/logout-all": {"post": {"tags": ["auth"], "summary": "Logout from every device",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}},
                "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/forgot-username": {"post": {"tags": ["auth"], "summary": "Email a username reminder",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.EmailRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}}}}},
        "/api/auth/forgot-password": {"post": {"tags": ["auth"], "summary": "Email a password reset link",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.EmailRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}}}}},
        "/api/auth/reset-password": {"post": {"tags": ["auth"], "summary": "Reset a password with a reset token",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.ResetPasswordRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/authenticate-user": {"get": {"tags": ["auth"], "summary": "Current account",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/repository.Account"}},
                "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/change-username": {"put": {"tags": ["auth"], "summary": "Change username",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.ChangeUsernameRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/update-email": {"put": {"tags": ["auth"], "summary": "Change email",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.UpdateEmailRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/change-password": {"put": {"tags": ["auth"], "summary": "Change password",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/identity.ChangePasswordRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SessionResponse"}},
                "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/delete-user": {"delete": {"tags": ["auth"], "summary": "Deactivate the account",
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}}}}},
        "/api/auth/validate-token": {"post": {"tags": ["auth"], "summary": "Validate a session token",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ValidateTokenRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/token.Claims"}},
                "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/auth/roles": {"get": {"tags": ["auth"], "summary": "Role catalogue",
            "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/identity.Role"}}}}}}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "handlers.MessageResponse": {"type": "object", "properties": {"message": {"type": "string"}}},
        "handlers.ValidateTokenRequest": {"type": "object", "properties": {"token": {"type": "string"}}},
        "handlers.SessionResponse": {"type": "object", "properties": {"token": {"type": "string"}, "account": {"$ref": "#/definitions/repository.Account"}}},
        "repository.Account": {"type": "object", "properties": {
            "id": {"type": "string"}, "username": {"type": "string"}, "email": {"type": "string"},
            "roles": {"type": "array", "items": {"type": "string"}}, "active": {"type": "boolean"},
            "created_at": {"type": "string"}, "updated_at": {"type": "string"}}},
        "identity.RegisterRequest": {"type": "object", "required": ["username", "email", "password"], "properties": {
            "username": {"type": "string", "minLength": 3, "maxLength": 32}, "email": {"type": "string"},
            "password": {"type": "string", "minLength": 8, "maxLength": 72}}},
        "identity.LoginRequest": {"type": "object", "required": ["username", "password"], "properties": {
            "username": {"type": "string"}, "password": {"type": "string"}}},
        "identity.EmailRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}}},
        "identity.ResetPasswordRequest": {"type": "object", "required": ["reset_token", "new_password"], "properties": {
            "reset_token": {"type": "string"}, "new_password": {"type": "string", "minLength": 8, "maxLength": 72}}},
        "identity.ChangeUsernameRequest": {"type": "object", "required": ["new_username"], "properties": {
            "new_username": {"type": "string", "minLength": 3, "maxLength": 32}}},
        "identity.UpdateEmailRequest": {"type": "object", "required": ["new_email"], "properties": {"new_email": {"type": "string"}}},
        "identity.ChangePasswordRequest": {"type": "object", "required": ["current_password", "new_password"], "properties": {
            "current_password": {"type": "string"}, "new_password": {"type": "string", "minLength": 8, "maxLength": 72}}},
        "identity.Role": {"type": "object", "properties": {"name": {"type": "string"}, "description": {"type": "string"}}},
        "token.Claims": {"type": "object", "properties": {
            "sub": {"type": "string"}, "username": {"type": "string"}, "email": {"type": "string"},
            "roles": {"type": "array", "items": {"type": "string"}}, "token_version": {"type": "integer"},
            "purpose": {"type": "string"}, "exp": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parley Identity API",
	Description:      "Accounts, sessions and token revocation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
