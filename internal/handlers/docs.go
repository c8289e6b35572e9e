package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 description of the query API.
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	pageParams := []map[string]interface{}{
		{
			"name":        "page",
			"in":          "query",
			"description": "Page number (default: 1)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": DefaultPage},
		},
		{
			"name":        "page_size",
			"in":          "query",
			"description": "Items per page (default: 10, max: 1000)",
			"required":    false,
			"schema":      map[string]interface{}{"type": "integer", "default": DefaultPageSize},
		},
	}

	stationParam := map[string]interface{}{
		"name":        "station_id",
		"in":          "query",
		"description": "Filter by weather station ID",
		"required":    false,
		"schema":      map[string]string{"type": "string"},
	}

	observationSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                      map[string]string{"type": "integer"},
			"station_id":              map[string]string{"type": "string"},
			"observation_date":        map[string]string{"type": "string", "format": "date-time"},
			"max_temperature_celsius": map[string]interface{}{"type": "number", "nullable": true},
			"min_temperature_celsius": map[string]interface{}{"type": "number", "nullable": true},
			"precipitation_cm":        map[string]interface{}{"type": "number", "nullable": true},
		},
	}

	statisticsSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                          map[string]string{"type": "integer"},
			"station_id":                  map[string]string{"type": "string"},
			"year":                        map[string]string{"type": "integer"},
			"avg_max_temperature_celsius": map[string]interface{}{"type": "number", "nullable": true},
			"avg_min_temperature_celsius": map[string]interface{}{"type": "number", "nullable": true},
			"total_precipitation_cm":      map[string]interface{}{"type": "number", "nullable": true},
			"observation_count":           map[string]string{"type": "integer"},
		},
	}

	paginatedOf := func(items map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"description": "Successful response",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"data":        map[string]interface{}{"type": "array", "items": items},
							"total_items": map[string]string{"type": "integer"},
							"page":        map[string]string{"type": "integer"},
							"page_size":   map[string]string{"type": "integer"},
							"total_pages": map[string]string{"type": "integer"},
						},
					},
				},
			},
		}
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Weather Pipeline API",
			"description": "Read-only query API over ingested weather observations and yearly statistics",
			"version":     "1.0.0",
		},
		"paths": map[string]interface{}{
			"/weather/": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get weather observations",
					"parameters": append([]map[string]interface{}{
						stationParam,
						{
							"name":        "date",
							"in":          "query",
							"description": "Filter by observation date (YYYY-MM-DD)",
							"required":    false,
							"schema":      map[string]string{"type": "string", "format": "date"},
						},
					}, pageParams...),
					"responses": map[string]interface{}{
						"200": paginatedOf(observationSchema),
						"400": map[string]interface{}{"description": "Malformed filter value"},
					},
				},
			},
			"/weather/stats/": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get yearly weather statistics",
					"parameters": append([]map[string]interface{}{
						stationParam,
						{
							"name":        "year",
							"in":          "query",
							"description": "Filter by year",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
					}, pageParams...),
					"responses": map[string]interface{}{
						"200": paginatedOf(statisticsSchema),
						"400": map[string]interface{}{"description": "Malformed filter value"},
					},
				},
			},
			"/weather/stations/": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "List known weather stations",
					"parameters": pageParams,
					"responses": map[string]interface{}{
						"200": paginatedOf(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"station_id": map[string]string{"type": "string"},
								"state":      map[string]string{"type": "string"},
							},
						}),
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
