package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/sanitize"
)

type GroupService interface {
	List(ctx context.Context) ([]groups.Group, error)
	GetByID(ctx context.Context, id int64) (*groups.Group, error)
	Create(ctx context.Context, params groups.Params) (*groups.Group, error)
	Update(ctx context.Context, id int64, params groups.Params) (*groups.Group, error)
	Delete(ctx context.Context, id int64) error
}

type GroupsHandler struct {
	Service GroupService
	Env     string
}

func NewGroupsHandler(service GroupService, env string) *GroupsHandler {
	return &GroupsHandler{Service: service, Env: env}
}

type memberRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Age         *int    `json:"age" validate:"required,gte=0,lte=150"`
	Email       string  `json:"email" validate:"required,email,max=255"`
	MarathonIDs []int64 `json:"marathonIds" validate:"omitempty,dive,gt=0"`
}

type groupRequest struct {
	Name           string          `json:"name" validate:"required,max=255"`
	OrganizationID int64           `json:"organizationId" validate:"required,gt=0"`
	Members        []memberRequest `json:"members" validate:"omitempty,dive"`
}

func (req groupRequest) params() groups.Params {
	members := make([]groups.MemberParams, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, groups.MemberParams{
			Name:        m.Name,
			Age:         *m.Age,
			Email:       m.Email,
			MarathonIDs: m.MarathonIDs,
		})
	}
	return groups.Params{
		Name:           req.Name,
		OrganizationID: req.OrganizationID,
		Members:        members,
	}
}

type memberResponse struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	Age       int                `json:"age"`
	Email     string             `json:"email"`
	GroupID   int64              `json:"groupId"`
	GroupName string             `json:"groupName"`
	Marathons []marathonResponse `json:"marathons"`
}

type groupResponse struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	OrganizationID   int64            `json:"organizationId"`
	OrganizationName string           `json:"organizationName"`
	Members          []memberResponse `json:"members"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func toGroupResponse(g groups.Group) groupResponse {
	members := make([]memberResponse, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, memberResponse{
			ID:        m.ID,
			Name:      m.Name,
			Age:       m.Age,
			Email:     m.Email,
			GroupID:   m.GroupID,
			GroupName: m.GroupName,
			Marathons: toMarathonResponses(m.Marathons),
		})
	}
	return groupResponse{
		ID:               g.ID,
		Name:             g.Name,
		OrganizationID:   g.OrganizationID,
		OrganizationName: g.OrganizationName,
		Members:          members,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
}

func toGroupResponses(items []groups.Group) []groupResponse {
	out := make([]groupResponse, 0, len(items))
	for _, g := range items {
		out = append(out, toGroupResponse(g))
	}
	return out
}

func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		problem.ServerError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponses(items))
}

func (h *GroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	item, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(*item))
}

func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Create(r.Context(), req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupResponse(*item))
}

// Update replaces the group's name, organization and full member set.
func (h *GroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	var req groupRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Update(r.Context(), id, req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupResponse(*item))
}

func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *GroupsHandler) readRequest(w http.ResponseWriter, r *http.Request, req *groupRequest) bool {
	if !decodeJSON(w, r, req, h.Env) {
		return false
	}
	sanitize.Fields(&req.Name)
	for i := range req.Members {
		sanitize.Fields(&req.Members[i].Name)
	}
	return validateRequest(w, r, req, h.Env)
}

func (h *GroupsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, groups.ErrNotFound),
		errors.Is(err, groups.ErrOrganizationNotFound),
		errors.Is(err, groups.ErrMarathonNotFound):
		problem.NotFound(w, r, err, h.Env)
	default:
		problem.ServerError(w, r, err, h.Env)
	}
}
