// Package docs holds the swagger description of the certificate API.
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
        "/api/sessions/": {
            "post": {
                "description": "Creates a new certificate session and returns a session ID",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Create a new session",
                "responses": {
                    "200": {
                        "description": "{ sessionId: string }",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/api/sessions/{sessionID}/template": {
            "post": {
                "description": "Uploads the PDF template whose placeholders will be filled",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Upload a certificate template",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true},
                    {"type": "file", "description": "PDF template", "name": "template", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "{ filename: string, size: int, pages: int }", "schema": {"type": "object"}},
                    "400": {"description": "Bad request", "schema": {"type": "string"}},
                    "404": {"description": "Session not found", "schema": {"type": "string"}}
                }
            }
        },
        "/api/sessions/{sessionID}/data": {
            "post": {
                "description": "Uploads a CSV or Excel file with one row per certificate",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Upload recipient data",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true},
                    {"type": "file", "description": "CSV or XLSX file", "name": "data", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "{ filename: string, rows: int, columns: [string] }", "schema": {"type": "object"}},
                    "400": {"description": "Bad request", "schema": {"type": "string"}},
                    "404": {"description": "Session not found", "schema": {"type": "string"}}
                }
            }
        },
        "/api/sessions/{sessionID}/signature": {
            "post": {
                "description": "Uploads a signature image (PNG/JPEG) stamped on every certificate",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["signature"],
                "summary": "Upload a signature image",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true},
                    {"type": "file", "description": "Signature image file (PNG/JPEG)", "name": "signature", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "{ filename: string, size: int }", "schema": {"type": "object"}},
                    "400": {"description": "Bad request - invalid image format", "schema": {"type": "string"}},
                    "404": {"description": "Session not found", "schema": {"type": "string"}}
                }
            }
        },
        "/api/sessions/{sessionID}/actions/analyze": {
            "post": {
                "description": "Lists template placeholders and pairs them with data columns",
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Analyze the template against the data",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.analysisResponse"}},
                    "400": {"description": "Template or data missing", "schema": {"type": "string"}},
                    "404": {"description": "Session not found", "schema": {"type": "string"}},
                    "422": {"description": "Template has no placeholders", "schema": {"type": "string"}}
                }
            }
        },
        "/api/sessions/{sessionID}/actions/generate": {
            "post": {
                "description": "Renders one certificate per data row and packs them into a ZIP archive",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["actions"],
                "summary": "Generate certificates",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true},
                    {"description": "Overlay positions", "name": "options", "in": "body", "schema": {"$ref": "#/definitions/handlers.generateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.generateResponse"}},
                    "400": {"description": "Template or data missing", "schema": {"type": "string"}},
                    "404": {"description": "Session not found", "schema": {"type": "string"}},
                    "409": {"description": "Generation already in progress", "schema": {"type": "string"}},
                    "422": {"description": "No certificate could be generated", "schema": {"type": "string"}}
                }
            }
        },
        "/api/sessions/{sessionID}/files/{filename}": {
            "get": {
                "description": "Downloads the ZIP archive generated for the session",
                "produces": ["application/zip"],
                "tags": ["files"],
                "summary": "Download generated certificates",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "sessionID", "in": "path", "required": true},
                    {"type": "string", "description": "Archive filename", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "ZIP archive download", "schema": {"type": "file"}},
                    "403": {"description": "Unauthorized access to file", "schema": {"type": "string"}},
                    "404": {"description": "Session or file not found", "schema": {"type": "string"}}
                }
            }
        },
        "/api/verify/{certID}": {
            "get": {
                "description": "Looks up a certificate by id and checks its signature",
                "produces": ["application/json"],
                "tags": ["verify"],
                "summary": "Verify a certificate",
                "parameters": [
                    {"type": "string", "description": "Certificate ID", "name": "certID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.verifyResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.verifyResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.match": {
            "type": "object",
            "properties": {
                "placeholder": {"type": "string"},
                "column": {"type": "string"}
            }
        },
        "handlers.analysisResponse": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"},
                "placeholders": {"type": "array", "items": {"type": "string"}},
                "columns": {"type": "array", "items": {"type": "string"}},
                "matched": {"type": "array", "items": {"$ref": "#/definitions/handlers.match"}},
                "unmatched": {"type": "array", "items": {"type": "string"}},
                "total": {"type": "integer"},
                "preview": {"type": "array", "items": {"type": "object", "additionalProperties": {"type": "string"}}},
                "hasSignature": {"type": "boolean"}
            }
        },
        "handlers.generateRequest": {
            "type": "object",
            "properties": {
                "qrPosition": {"type": "string"},
                "signaturePosition": {"type": "string"},
                "combined": {"type": "boolean"}
            }
        },
        "batch.Issued": {
            "type": "object",
            "properties": {
                "row": {"type": "integer"},
                "certId": {"type": "string"},
                "name": {"type": "string"},
                "course": {"type": "string"},
                "date": {"type": "string"},
                "file": {"type": "string"},
                "signature": {"type": "string"}
            }
        },
        "handlers.generateResponse": {
            "type": "object",
            "properties": {
                "downloadUrl": {"type": "string"},
                "succeeded": {"type": "integer"},
                "failed": {"type": "integer"},
                "errors": {"type": "array", "items": {"type": "string"}},
                "certificates": {"type": "array", "items": {"$ref": "#/definitions/batch.Issued"}}
            }
        },
        "handlers.certificateView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "recipient": {"type": "string"},
                "course": {"type": "string"},
                "issueDate": {"type": "string"},
                "issuedAt": {"type": "string"}
            }
        },
        "handlers.verifyResponse": {
            "type": "object",
            "properties": {
                "found": {"type": "boolean"},
                "valid": {"type": "boolean"},
                "certId": {"type": "string"},
                "message": {"type": "string"},
                "certificate": {"$ref": "#/definitions/handlers.certificateView"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "go-certgen API",
	Description:      "Batch certificate generation from PDF templates with QR verification.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
