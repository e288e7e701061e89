package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/registry"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 20

// AnchorService is the application surface the API exposes.
type AnchorService interface {
	Register(ctx context.Context, in registry.RegisterInput) (domain.Record, error)
	Resolve(ctx context.Context, in registry.ResolveInput) (registry.Resolution, error)
	History(ctx context.Context) ([]domain.Record, error)
}

type handlers struct {
	svc    AnchorService
	logger *slog.Logger
}

// Coordinates are decoded leniently: anything that is not a JSON number
// becomes nil and is rejected by the service with a 400.
type registerRequest struct {
	Lat     json.RawMessage `json:"lat"`
	Lon     json.RawMessage `json:"lon"`
	Content json.RawMessage `json:"content"`
}

type resolveRequest struct {
	Lat             json.RawMessage `json:"lat"`
	Lon             json.RawMessage `json:"lon"`
	ThresholdMeters json.RawMessage `json:"thresholdMeters"`
}

type registerResponse struct {
	OK     bool          `json:"ok"`
	Record domain.Record `json:"record"`
}

type resolveResponse struct {
	Content  json.RawMessage `json:"content"`
	Record   domain.Match    `json:"record"`
	Distance float64         `json:"distance"`
}

type historyResponse struct {
	Records []domain.Record `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.svc.Register(r.Context(), registry.RegisterInput{
		Lat:     number(req.Lat),
		Lon:     number(req.Lon),
		Content: req.Content,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, registerResponse{OK: true, Record: rec})
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Resolve(r.Context(), registry.ResolveInput{
		Lat:             number(req.Lat),
		Lon:             number(req.Lon),
		ThresholdMeters: number(req.ThresholdMeters),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resolveResponse{
		Content:  res.Content,
		Record:   res.Match,
		Distance: res.Match.Distance,
	})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.History(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, historyResponse{Records: records})
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *domain.InputError
	switch {
	case errors.As(err, &inputErr):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: inputErr.Reason})
	case errors.Is(err, domain.ErrInvalidInput):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrContentUnreachable):
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Invalid content URL"})
	case errors.Is(err, domain.ErrNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "No record found within threshold"})
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// number returns nil unless raw is a JSON number.
func number(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}
