package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"weatherhub/internal/client"
	"weatherhub/internal/export"
	"weatherhub/internal/health"
	"weatherhub/internal/models"
	"weatherhub/internal/service"
	"weatherhub/internal/store"
	"weatherhub/internal/svcerr"
	"weatherhub/internal/validation"
)

// maxInputLen bounds the raw lookup input in runes.
const maxInputLen = 100

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	store          *store.Store
	checker        *health.Checker
	logger         *zap.Logger
	validate       *validator.Validate
}

// NewHandler returns a new Handler.
func NewHandler(weatherService *service.WeatherService, st *store.Store, checker *health.Checker, logger *zap.Logger) *Handler {
	return &Handler{
		weatherService: weatherService,
		store:          st,
		checker:        checker,
		logger:         logger,
		validate:       validator.New(),
	}
}

// Register wires the API routes onto the router. /health and /metrics are
// registered by the caller outside the rate-limited subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/weather", h.GetCurrentWeather).Methods(http.MethodGet)
	r.HandleFunc("/weather/forecast", h.GetForecast).Methods(http.MethodGet)
	r.HandleFunc("/weather/hourly", h.GetHourly).Methods(http.MethodGet)

	r.HandleFunc("/locations/search", h.PostLocationSearch).Methods(http.MethodPost)
	r.HandleFunc("/locations/reverse", h.GetReverseGeocode).Methods(http.MethodGet)
	r.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	r.HandleFunc("/locations/{id:[0-9]+}", h.GetLocation).Methods(http.MethodGet)
	r.HandleFunc("/locations/{id:[0-9]+}", h.PatchLocation).Methods(http.MethodPatch)
	r.HandleFunc("/locations/{id:[0-9]+}", h.DeleteLocation).Methods(http.MethodDelete)
	r.HandleFunc("/locations/{id:[0-9]+}/records", h.ListRecords).Methods(http.MethodGet)

	r.HandleFunc("/records", h.CreateRecord).Methods(http.MethodPost)
	r.HandleFunc("/records/{id:[0-9]+}", h.GetRecord).Methods(http.MethodGet)
	r.HandleFunc("/records/{id:[0-9]+}", h.PatchRecord).Methods(http.MethodPatch)
	r.HandleFunc("/records/{id:[0-9]+}", h.DeleteRecord).Methods(http.MethodDelete)

	r.HandleFunc("/export/records", h.ExportRecords).Methods(http.MethodGet)
}

// GetCurrentWeather handles GET /weather?input=...&country=...&save=true.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	input, err := validation.ValidateInput(r.URL.Query().Get("input"), maxInputLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	save := r.URL.Query().Get("save") == "true"

	result, err := h.weatherService.GetCurrent(r.Context(), input, country, save)
	if err != nil {
		health.RecordUpstreamError()
		writeTaxonomyError(w, r, err)
		return
	}
	health.RecordUpstreamSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /weather/forecast?input=...&country=....
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	h.serveForecast(w, r, h.weatherService.GetForecast)
}

// GetHourly handles GET /weather/hourly?input=...&country=....
func (h *Handler) GetHourly(w http.ResponseWriter, r *http.Request) {
	h.serveForecast(w, r, h.weatherService.GetHourly)
}

func (h *Handler) serveForecast(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string, string) (models.Forecast, error)) {
	input, err := validation.ValidateInput(r.URL.Query().Get("input"), maxInputLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))

	result, err := fetch(r.Context(), input, country)
	if err != nil {
		health.RecordUpstreamError()
		writeTaxonomyError(w, r, err)
		return
	}
	health.RecordUpstreamSuccess()
	writeJSON(w, http.StatusOK, result)
}

// locationSearchRequest is the body for POST /locations/search.
type locationSearchRequest struct {
	Query string `json:"query" validate:"required,min=1,max=100"`
	Limit int    `json:"limit" validate:"omitempty,gte=1,lte=10"`
}

// PostLocationSearch handles POST /locations/search. Geocodes the query and
// persists every candidate, returning the stored rows.
func (h *Handler) PostLocationSearch(w http.ResponseWriter, r *http.Request) {
	var req locationSearchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	locations, err := h.weatherService.SearchLocations(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

// GetReverseGeocode handles GET /locations/reverse?lat=...&lon=....
func (h *Handler) GetReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "lat must be a number between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "lon must be a number between -180 and 180")
		return
	}

	candidate, err := h.weatherService.ReverseLookup(r.Context(), lat, lon)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

// ListLocations handles GET /locations?q=...&limit=.... An empty q lists
// stored locations up to the limit.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	var locations []store.Location
	var err error
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		locations, err = h.store.SearchLocations(r.Context(), q, limit)
	} else {
		locations, err = h.store.ListLocations(r.Context(), limit)
	}
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

// GetLocation handles GET /locations/{id}.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loc, err := h.store.LocationByID(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// locationPatchRequest is the body for PATCH /locations/{id}.
type locationPatchRequest struct {
	Label string `json:"label" validate:"required,max=100"`
}

// PatchLocation handles PATCH /locations/{id}. Only the user label is
// mutable; identity fields are fixed at creation.
func (h *Handler) PatchLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req locationPatchRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	loc, err := h.store.UpdateLocationLabel(r.Context(), id, req.Label)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// DeleteLocation handles DELETE /locations/{id}. Locations with dependent
// records are protected and return 409.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteLocation(r.Context(), id); err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordCreateRequest is the body for POST /records. TempF is derived from
// TempC when omitted.
type recordCreateRequest struct {
	LocationID        uint      `json:"locationId" validate:"required"`
	WeatherDate       time.Time `json:"weatherDate" validate:"required"`
	TempC             float64   `json:"tempC" validate:"gte=-100,lte=100"`
	TempF             *float64  `json:"tempF"`
	Humidity          *int      `json:"humidity" validate:"omitempty,gte=0,lte=100"`
	WindSpeed         *float64  `json:"windSpeed" validate:"omitempty,gte=0"`
	WindDeg           *int      `json:"windDeg" validate:"omitempty,gte=0,lte=360"`
	WindGust          *float64  `json:"windGust" validate:"omitempty,gte=0"`
	Condition         string    `json:"condition" validate:"required,max=50"`
	ConditionDesc     string    `json:"conditionDesc" validate:"max=200"`
	Icon              string    `json:"icon" validate:"max=10"`
	Pressure          *int      `json:"pressure" validate:"omitempty,gte=0"`
	Visibility        *int      `json:"visibility" validate:"omitempty,gte=0"`
	Precipitation     float64   `json:"precipitation" validate:"gte=0"`
	PrecipitationType *string   `json:"precipitationType" validate:"omitempty,oneof=rain snow"`
	UVI               *float64  `json:"uvi" validate:"omitempty,gte=0"`
	Tip               string    `json:"tip" validate:"max=200"`
}

// CreateRecord handles POST /records.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordCreateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	tempF := client.CToF(req.TempC)
	if req.TempF != nil {
		tempF = *req.TempF
	}
	record, err := h.store.CreateWeatherRecord(r.Context(), store.WeatherRecord{
		LocationID:        req.LocationID,
		WeatherDate:       req.WeatherDate,
		TempC:             req.TempC,
		TempF:             tempF,
		Humidity:          req.Humidity,
		WindSpeed:         req.WindSpeed,
		WindDeg:           req.WindDeg,
		WindGust:          req.WindGust,
		Condition:         req.Condition,
		ConditionDesc:     req.ConditionDesc,
		Icon:              req.Icon,
		Pressure:          req.Pressure,
		Visibility:        req.Visibility,
		Precipitation:     req.Precipitation,
		PrecipitationType: req.PrecipitationType,
		UVI:               req.UVI,
		APISource:         "manual",
		Tip:               req.Tip,
	})
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// GetRecord handles GET /records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	record, err := h.store.WeatherRecordByID(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListRecords handles GET /locations/{id}/records?from=...&to=....
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	// A range query against an unknown location is a 404, not an empty list.
	if _, err := h.store.LocationByID(r.Context(), id); err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	records, err := h.store.WeatherRecordsByLocation(r.Context(), id, from, to)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// PatchRecord handles PATCH /records/{id}. The body is a partial update;
// absent fields keep their stored values.
func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch store.WeatherRecordPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}

	record, err := h.store.UpdateWeatherRecord(r.Context(), id, patch)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteRecord handles DELETE /records/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.store.DeleteWeatherRecord(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "weather record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportRecords handles GET /export/records?locationId=...&format=csv|json|pdf.
// The document is rendered in memory first so validation failures never leave
// a truncated download behind committed headers.
func (h *Handler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("locationId")
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "locationId must be a positive integer")
		return
	}
	format := export.FormatCSV
	if raw := r.URL.Query().Get("format"); raw != "" {
		format, err = export.ParseFormat(raw)
		if err != nil {
			writeTaxonomyError(w, r, err)
			return
		}
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	if _, err := h.store.LocationByID(r.Context(), uint(id)); err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	records, err := h.store.WeatherRecordsByLocation(r.Context(), uint(id), from, to)
	if err != nil {
		writeTaxonomyError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteRecords(&buf, format, records); err != nil {
		writeTaxonomyError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Evaluate()
	writeJSON(w, report.StatusCode, map[string]any{
		"status":    report.Status,
		"service":   h.checker.Service,
		"version":   h.checker.Version,
		"checks":    report.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing a 400 response on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into a single readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag()+" validation")
	}
	return strings.Join(parts, "; ")
}

// pathID parses the {id} route variable, writing a 400 response on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || id == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// parseDateRange reads optional from/to query params. Accepts RFC 3339 or a
// bare date; a bare "to" date covers the whole day.
func parseDateRange(r *http.Request) (from, to *time.Time, err error) {
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, _, perr := parseTimeParam(raw)
		if perr != nil {
			return nil, nil, perr
		}
		from = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, bare, perr := parseTimeParam(raw)
		if perr != nil {
			return nil, nil, perr
		}
		if bare {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func parseTimeParam(raw string) (t time.Time, bareDate bool, err error) {
	if t, err = time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, errors.New("dates must be YYYY-MM-DD or RFC 3339")
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeTaxonomyError maps service errors onto HTTP statuses. Client mistakes
// carry the error text; server and upstream failures get a generic message
// and the detail goes to the debug log.
func writeTaxonomyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, svcerr.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, svcerr.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, svcerr.ErrConflict):
		writeError(w, r, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "upstream request timed out")
		logDebug(r, "upstream timeout", err)
	case errors.Is(err, svcerr.ErrUpstreamUnavailable):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "unable to fetch weather data")
		logDebug(r, "upstream error", err)
	case errors.Is(err, svcerr.ErrStorageFailure):
		writeError(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "storage operation failed")
		logDebug(r, "storage error", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error")
		logDebug(r, "unhandled error", err)
	}
}

func logDebug(r *http.Request, msg string, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug(msg, zap.Error(err))
	}
}
