// Package profile registers the profile service's OpenAPI document with
// swag. Importing it for side effects makes /swagger/doc.json serve it.
package profile

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
        "/api/users": {
            "get": {"tags": ["users"], "summary": "Own profile",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/profile.Profile"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}},
            "put": {"tags": ["users"], "summary": "Update own profile",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/profile.UpdateRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/profile.Profile"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}
        },
        "/api/users/search": {"get": {"tags": ["users"], "summary": "Search active profiles by username",
            "parameters": [
                {"in": "query", "name": "q", "type": "string", "required": true},
                {"in": "query", "name": "limit", "type": "integer"},
                {"in": "query", "name": "offset", "type": "integer"}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SearchResponse"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/users/batch": {"get": {"tags": ["users"], "summary": "Look up several profiles",
            "parameters": [{"in": "query", "name": "usernames", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/profile.Profile"}}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/api/users/email/{email}": {"get": {"tags": ["users"], "summary": "Profile by email",
            "parameters": [{"in": "path", "name": "email", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/profile.Profile"}},
                "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "handlers.SearchResponse": {"type": "object", "properties": {
            "results": {"type": "array", "items": {"$ref": "#/definitions/profile.Profile"}},
            "total": {"type": "integer"}, "limit": {"type": "integer"}, "offset": {"type": "integer"}}},
        "profile.Profile": {"type": "object", "properties": {
            "subject_id": {"type": "string"}, "username": {"type": "string"}, "email": {"type": "string"},
            "roles": {"type": "array", "items": {"type": "string"}},
            "first_name": {"type": "string"}, "middle_name": {"type": "string"}, "last_name": {"type": "string"},
            "phone": {"type": "string"}, "profile_picture": {"type": "string"},
            "status": {"type": "string", "enum": ["online", "offline", "away", "busy"]},
            "last_seen": {"type": "string"}, "created_at": {"type": "string"}, "updated_at": {"type": "string"}}},
        "profile.UpdateRequest": {"type": "object", "properties": {
            "first_name": {"type": "string", "maxLength": 64}, "middle_name": {"type": "string", "maxLength": 64},
            "last_name": {"type": "string", "maxLength": 64}, "phone": {"type": "string"},
            "profile_picture": {"type": "string"},
            "status": {"type": "string", "enum": ["online", "offline", "away", "busy"]}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Parley User Profile API",
	Description:      "User profiles kept in step with identity events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
