package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"shortlink/internal/model"
	"shortlink/internal/service"
	"shortlink/internal/util"
)

type Handler struct {
	Service     *service.Service
	AdminToken  string
	BaseURL     string
	RateLimiter *SimpleRateLimiter

	log *zap.Logger
}

type shortenResponse struct {
	ShortCode string    `json:"short_code"`
	ShortURL  string    `json:"short_url"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type bulkRequest struct {
	Links []model.CreateRequest `json:"links"`
}

type bulkItemResponse struct {
	Success   bool   `json:"success"`
	ShortCode string `json:"short_code,omitempty"`
	ShortURL  string `json:"short_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

type sweepResponse struct {
	Cleaned int64 `json:"cleaned"`
}

func NewHandler(s *service.Service, baseURL, adminToken string, limiter *SimpleRateLimiter, log *zap.Logger) *Handler {
	return &Handler{
		Service:     s,
		AdminToken:  adminToken,
		BaseURL:     baseURL,
		RateLimiter: limiter,
		log:         log,
	}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/shorten", h.RateLimitMiddleware(h.CreateShort)).Methods("POST")
	r.HandleFunc("/bulk", h.RateLimitMiddleware(h.CreateBulk)).Methods("POST")
	r.HandleFunc("/info/{code}", h.Info).Methods("GET")
	r.HandleFunc("/analytics/{code}", h.Analytics).Methods("GET")
	r.HandleFunc("/admin/sweep", h.AdminAuth(h.Sweep)).Methods("POST")
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/{code}", h.Redirect).Methods("GET")
	r.HandleFunc("/{code}", h.Delete).Methods("DELETE")

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h.log.Info("request", zap.String("method", req.Method), zap.String("path", req.URL.Path))
			next.ServeHTTP(w, req)
		})
	})

	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) CreateShort(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}

	rec, err := h.Service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.shortenResponseFor(rec))
}

func (h *Handler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}
	if len(req.Links) == 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", "links is empty")
		return
	}

	results := h.Service.CreateMany(r.Context(), req.Links)

	// One entry per input, same order, so callers can correlate.
	items := make([]bulkItemResponse, len(results))
	for i, res := range results {
		if res.Err != nil {
			items[i] = bulkItemResponse{Success: false, Error: errorCode(res.Err)}
			continue
		}
		items[i] = bulkItemResponse{
			Success:   true,
			ShortCode: res.Record.ShortCode,
			ShortURL:  h.shortURL(res.Record.ShortCode),
		}
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	ip := util.ClientIP(r)
	if !h.RateLimiter.Allow(ip) {
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return
	}

	rec, err := h.Service.Resolve(r.Context(), code, r.URL.Query().Get("password"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// The redirect is authoritative; click recording is best-effort and
	// never delays or fails it.
	h.Service.RecordClick(code, ip, r.UserAgent(), r.Referer())

	http.Redirect(w, r, rec.TargetURL, http.StatusFound)
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Info(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Analytics(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	ownerID := r.Header.Get("X-Owner-Id")
	if err := h.Service.Delete(r.Context(), code, ownerID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.Service.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sweepResponse{Cleaned: cleaned})
}

func (h *Handler) AdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if h.AdminToken == "" || token != h.AdminToken {
			h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (h *Handler) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.RateLimiter.Allow(util.ClientIP(r)) {
			h.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// ---- response helpers ----

func (h *Handler) shortURL(code string) string {
	return fmt.Sprintf("%s/%s", h.BaseURL, code)
}

func (h *Handler) shortenResponseFor(rec *model.LinkRecord) shortenResponse {
	return shortenResponse{
		ShortCode: rec.ShortCode,
		ShortURL:  h.shortURL(rec.ShortCode),
		TargetURL: rec.TargetURL,
		CreatedAt: rec.CreatedAt,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("response encode failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("internal error", zap.Error(err))
	}
	h.writeError(w, status, code, err.Error())
}

func errorCode(err error) string {
	_, code := statusFor(err)
	return code
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidURL):
		return http.StatusBadRequest, "INVALID_URL"
	case errors.Is(err, model.ErrInvalidAlias):
		return http.StatusBadRequest, "INVALID_ALIAS"
	case errors.Is(err, model.ErrAliasTaken):
		return http.StatusConflict, "CODE_EXISTS"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, model.ErrExpired):
		return http.StatusGone, "EXPIRED"
	case errors.Is(err, model.ErrInactive):
		return http.StatusGone, "INACTIVE"
	case errors.Is(err, model.ErrPasswordRequired):
		return http.StatusUnauthorized, "PASSWORD_REQUIRED"
	case errors.Is(err, model.ErrPasswordIncorrect):
		return http.StatusUnauthorized, "PASSWORD_INCORRECT"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, model.ErrGenerationExhausted):
		return http.StatusServiceUnavailable, "GENERATION_EXHAUSTED"
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
