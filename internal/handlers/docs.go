package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Energy Forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Energy Forecast API",
			"description": "Multi-tenant solar/wind energy forecasting service: plant owners register a location and retrieve weather-driven energy predictions",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/register": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Register a plant owner",
					"description": "Creates an account with plant name, city, coordinates and credentials",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type":     "object",
									"required": []string{"plant_name", "latitude", "longitude", "city", "username", "password"},
									"properties": map[string]interface{}{
										"plant_name": map[string]string{"type": "string"},
										"latitude":   map[string]string{"type": "number"},
										"longitude":  map[string]string{"type": "number"},
										"city":       map[string]string{"type": "string"},
										"username":   map[string]string{"type": "string"},
										"password":   map[string]string{"type": "string", "format": "password"},
									},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"201": map[string]string{"description": "Registration successful"},
						"400": map[string]string{"description": "Validation error"},
						"409": map[string]string{"description": "Username already taken"},
					},
				},
			},
			"/api/login": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Log in",
					"description": "Verifies credentials and sets the session cookie",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Login successful"},
						"401": map[string]string{"description": "Invalid credentials"},
					},
				},
			},
			"/api/logout": map[string]interface{}{
				"post": map[string]interface{}{
					"summary": "Log out",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Session destroyed"},
					},
				},
			},
			"/predict": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Generate energy forecasts",
					"description": "Fetches the upcoming weather window for the caller's registered coordinates, predicts solar and wind energy per day, and stores one forecast row per (user, date). Existing rows are never overwritten. /forecast is an alias.",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Predictions stored successfully"},
						"401": map[string]string{"description": "Authentication required"},
						"500": map[string]string{"description": "Weather data unavailable or persistence failed"},
					},
				},
			},
			"/dashboard": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Stored forecast rows for the current user",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Solar and wind forecast lists"},
						"401": map[string]string{"description": "Authentication required"},
					},
				},
			},
			"/dashboard-data": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Chart series of (date, energy) per forecast type",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Solar and wind chart series"},
						"401": map[string]string{"description": "Authentication required"},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Service health check",
					"responses": map[string]interface{}{
						"200": map[string]string{"description": "Service healthy"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
