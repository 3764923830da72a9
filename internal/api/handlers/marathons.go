package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
	"github.com/lgn-platform/lgn-api/internal/sanitize"
)

type MarathonService interface {
	List(ctx context.Context) ([]marathons.Marathon, error)
	GetByID(ctx context.Context, id int64) (*marathons.Marathon, error)
	Create(ctx context.Context, params marathons.Params) (*marathons.Marathon, error)
	Update(ctx context.Context, id int64, params marathons.Params) (*marathons.Marathon, error)
	Delete(ctx context.Context, id int64) error
}

type MarathonsHandler struct {
	Service MarathonService
	Env     string
}

func NewMarathonsHandler(service MarathonService, env string) *MarathonsHandler {
	return &MarathonsHandler{Service: service, Env: env}
}

// Weight and score are pointers so that an explicit 0 passes "required"
// while an absent field does not.
type marathonRequest struct {
	Identification string   `json:"identification" validate:"required,max=255"`
	Weight         *float64 `json:"weight" validate:"required"`
	Score          *float64 `json:"score" validate:"required"`
}

func (req marathonRequest) params() marathons.Params {
	return marathons.Params{
		Identification: req.Identification,
		Weight:         *req.Weight,
		Score:          *req.Score,
	}
}

type marathonResponse struct {
	ID             int64     `json:"id"`
	Identification string    `json:"identification"`
	Weight         float64   `json:"weight"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toMarathonResponse(m marathons.Marathon) marathonResponse {
	return marathonResponse{
		ID:             m.ID,
		Identification: m.Identification,
		Weight:         m.Weight,
		Score:          m.Score,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toMarathonResponses(items []marathons.Marathon) []marathonResponse {
	out := make([]marathonResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMarathonResponse(m))
	}
	return out
}

func (h *MarathonsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		problem.ServerError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toMarathonResponses(items))
}

func (h *MarathonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	item, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarathonResponse(*item))
}

func (h *MarathonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req marathonRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Create(r.Context(), req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarathonResponse(*item))
}

func (h *MarathonsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	var req marathonRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Update(r.Context(), id, req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarathonResponse(*item))
}

func (h *MarathonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MarathonsHandler) readRequest(w http.ResponseWriter, r *http.Request, req *marathonRequest) bool {
	if !decodeJSON(w, r, req, h.Env) {
		return false
	}
	sanitize.Fields(&req.Identification)
	return validateRequest(w, r, req, h.Env)
}

func (h *MarathonsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, marathons.ErrNotFound) {
		problem.NotFound(w, r, err, h.Env)
		return
	}
	problem.ServerError(w, r, err, h.Env)
}
