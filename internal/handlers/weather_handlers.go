package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-pipeline/internal/repository"
	"weather-pipeline/internal/services"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// Default pagination applied when the client sends no page parameters.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// queryDateLayout is the date format accepted by the query layer.
const queryDateLayout = "2006-01-02"

// WeatherHandler serves the read-only query API over the storage layer.
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler.
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	TotalItems int         `json:"total_items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// pagination extracts page/page_size, rejecting malformed values.
func pagination(r *http.Request) (page, pageSize int, ok bool) {
	page, pageSize = DefaultPage, DefaultPageSize

	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			return 0, 0, false
		}
		page = p
	}

	if v := r.URL.Query().Get("page_size"); v != "" {
		ps, err := strconv.Atoi(v)
		if err != nil || ps < 1 {
			return 0, 0, false
		}
		if ps > MaxPageSize {
			ps = MaxPageSize
		}
		pageSize = ps
	}

	return page, pageSize, true
}

// GetObservations handles GET /weather/.
// Optional filters: date (YYYY-MM-DD, exact) and station_id. Unknown filter
// values yield an empty page; a malformed date yields 400.
func (h *WeatherHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/weather/").Observe(time.Since(startTime).Seconds())
	}()

	page, pageSize, ok := pagination(r)
	if !ok {
		h.sendError(w, r, "invalid pagination parameters, expected positive integers", http.StatusBadRequest)
		return
	}

	filter := repository.ObservationFilter{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	if stationID := r.URL.Query().Get("station_id"); stationID != "" {
		filter.StationID = &stationID
	}

	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, err := time.Parse(queryDateLayout, dateStr)
		if err != nil {
			h.sendError(w, r, "invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.Date = &date
	}

	observations, total, err := h.weatherService.GetObservations(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_OBSERVATIONS_ERROR] Failed to get observations", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/weather/")
		h.sendError(w, r, "failed to retrieve observations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/weather/", "GET", "200")
	h.sendJSON(w, paginated(observations, total, page, pageSize), http.StatusOK)
}

// GetStatistics handles GET /weather/stats/.
// Optional filters: year and station_id. A non-integer year yields 400;
// a year with no aggregates yields an empty page.
func (h *WeatherHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/weather/stats/").Observe(time.Since(startTime).Seconds())
	}()

	page, pageSize, ok := pagination(r)
	if !ok {
		h.sendError(w, r, "invalid pagination parameters, expected positive integers", http.StatusBadRequest)
		return
	}

	filter := repository.StatisticsFilter{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	if stationID := r.URL.Query().Get("station_id"); stationID != "" {
		filter.StationID = &stationID
	}

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			h.sendError(w, r, "invalid year, expected an integer", http.StatusBadRequest)
			return
		}
		filter.Year = &year
	}

	statistics, total, err := h.statsService.GetStatistics(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"filter": filter,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/weather/stats/")
		h.sendError(w, r, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/weather/stats/", "GET", "200")
	h.sendJSON(w, paginated(statistics, total, page, pageSize), http.StatusOK)
}

// GetStations handles GET /weather/stations/.
func (h *WeatherHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, pageSize, ok := pagination(r)
	if !ok {
		h.sendError(w, r, "invalid pagination parameters, expected positive integers", http.StatusBadRequest)
		return
	}

	stations, total, err := h.weatherService.GetStations(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to list stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/weather/stations/")
		h.sendError(w, r, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/weather/stations/", "GET", "200")
	h.sendJSON(w, paginated(stations, total, page, pageSize), http.StatusOK)
}

// HealthCheck handles GET /health.
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.weatherService.HealthCheck(ctx); err != nil {
		h.sendJSON(w, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		}, http.StatusServiceUnavailable)
		return
	}

	h.sendJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

func paginated(data interface{}, total, page, pageSize int) PaginatedResponse {
	return PaginatedResponse{
		Data:       data,
		TotalItems: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all weather API routes.
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.StrictSlash(true)
	router.HandleFunc("/weather/", h.GetObservations).Methods("GET")
	router.HandleFunc("/weather/stats/", h.GetStatistics).Methods("GET")
	router.HandleFunc("/weather/stations/", h.GetStations).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
}
