// Package docs OpenAPI-описание HTTP API для Swagger UI.
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Service"],
                "summary": "Проверка доступности",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/upload_data": {
            "post": {
                "description": "Принимает файл наблюдений (или zip с одним файлом), разбирает заголовок и запускает конвертацию в фоне",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Quality"],
                "summary": "Загрузить RINEX-файл",
                "parameters": [
                    {"type": "file", "description": "Файл наблюдений RINEX", "name": "rinexFile", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quality.UploadResult"}},
                    "400": {"description": "Неверный файл", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Ошибка обработки", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/find_holes_in_data": {
            "post": {
                "description": "Ждет окончания конвертации и возвращает число пропущенных эпох по периодам суток",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Quality"],
                "summary": "Подсчитать пропуски",
                "parameters": [
                    {"type": "string", "description": "ID задачи", "name": "task_id", "in": "formData", "required": true},
                    {"type": "integer", "default": 15, "description": "Длина периода, минуты", "name": "data_period", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/quality.SatelliteHoles"}}},
                    "400": {"description": "Неверные параметры", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Задача не найдена", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Ошибка обработки", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/fetch_satellite_info": {
            "post": {
                "description": "Очищенные ряды наблюдений спутника. Для спутника без данных возвращается строка \"Empty satellite\"",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Quality"],
                "summary": "Данные спутника",
                "parameters": [
                    {"type": "string", "description": "ID задачи", "name": "task_id", "in": "formData", "required": true},
                    {"type": "string", "description": "Спутник, например G05", "name": "satellite", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quality.SatelliteInfo"}},
                    "400": {"description": "Неверные параметры", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Задача или спутник не найдены", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/stations/{station}/days": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Дни станции",
                "parameters": [
                    {"type": "string", "description": "Маркер станции", "name": "station", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/stations/{station}/days/{date}/{satellite}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Отчет о пропусках",
                "parameters": [
                    {"type": "string", "description": "Маркер станции", "name": "station", "in": "path", "required": true},
                    {"type": "string", "description": "Дата YYYY-MM-DD", "name": "date", "in": "path", "required": true},
                    {"type": "string", "description": "Спутник", "name": "satellite", "in": "path", "required": true},
                    {"type": "integer", "default": 15, "description": "Длина периода, минуты", "name": "data_period", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Отчет не найден", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/tasks/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Статус задачи",
                "parameters": [
                    {"type": "string", "description": "ID задачи", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/task.Task"}},
                    "404": {"description": "Задача не найдена", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "quality.GraphPoint": {
            "type": "object",
            "properties": {"x": {"type": "string"}, "y": {"type": "string"}}
        },
        "quality.GraphSeries": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/quality.GraphPoint"}}
            }
        },
        "quality.UploadResult": {
            "type": "object",
            "properties": {
                "task_id": {"type": "string"},
                "graph_data": {"type": "array", "items": {"$ref": "#/definitions/quality.GraphSeries"}}
            }
        },
        "quality.SignalHoles": {
            "type": "object",
            "properties": {
                "x": {"type": "string"},
                "y": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "quality.SatelliteHoles": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/quality.SignalHoles"}}
            }
        },
        "quality.SatelliteInfo": {
            "type": "object",
            "properties": {
                "tsn": {"type": "array", "items": {"type": "integer"}},
                "seconds": {"type": "array", "items": {"type": "integer"}},
                "elevation": {"type": "array", "items": {"type": "number"}},
                "signals": {"type": "array", "items": {"type": "string"}},
                "data": {"type": "array", "items": {"type": "array", "items": {"type": "number"}}},
                "timestep": {"type": "number"}
            }
        },
        "task.Task": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "processing", "completed", "failed"]},
                "result": {"type": "string"},
                "error": {"type": "string"},
                "filename": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "GNSS Quality Service API",
	Description:      "Загрузка RINEX-файлов и подсчет пропусков наблюдений по спутникам",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
