package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
	"github.com/lgn-platform/lgn-api/internal/sanitize"
)

type OrganizationService interface {
	List(ctx context.Context) ([]organizations.Organization, error)
	GetByID(ctx context.Context, id int64) (*organizations.Organization, error)
	Create(ctx context.Context, params organizations.Params) (*organizations.Organization, error)
	Update(ctx context.Context, id int64, params organizations.Params) (*organizations.Organization, error)
	Delete(ctx context.Context, id int64) error
}

type OrganizationsHandler struct {
	Service OrganizationService
	Env     string
}

func NewOrganizationsHandler(service OrganizationService, env string) *OrganizationsHandler {
	return &OrganizationsHandler{Service: service, Env: env}
}

type addressPayload struct {
	Street       string `json:"street" validate:"max=255"`
	Number       string `json:"number" validate:"max=32"`
	Neighborhood string `json:"neighborhood" validate:"max=255"`
	City         string `json:"city" validate:"max=255"`
	State        string `json:"state" validate:"max=255"`
	Country      string `json:"country" validate:"max=255"`
	ZipCode      string `json:"zipCode" validate:"max=32"`
}

func (a *addressPayload) clean() {
	sanitize.Fields(&a.Street, &a.Number, &a.Neighborhood, &a.City, &a.State, &a.Country, &a.ZipCode)
}

type organizationRequest struct {
	Name                string         `json:"name" validate:"required,max=255"`
	Address             addressPayload `json:"address"`
	InstitutionName     string         `json:"institutionName" validate:"required,max=255"`
	HeadquartersCountry string         `json:"headquartersCountry" validate:"required,max=255"`
}

func (req organizationRequest) params() organizations.Params {
	return organizations.Params{
		Name:                req.Name,
		Address:             organizations.Address(req.Address),
		InstitutionName:     req.InstitutionName,
		HeadquartersCountry: req.HeadquartersCountry,
	}
}

type organizationResponse struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Address             addressPayload  `json:"address"`
	InstitutionName     string          `json:"institutionName"`
	HeadquartersCountry string          `json:"headquartersCountry"`
	Groups              []groupResponse `json:"groups"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func toOrganizationResponse(o organizations.Organization) organizationResponse {
	return organizationResponse{
		ID:                  o.ID,
		Name:                o.Name,
		Address:             addressPayload(o.Address),
		InstitutionName:     o.InstitutionName,
		HeadquartersCountry: o.HeadquartersCountry,
		Groups:              toGroupResponses(o.Groups),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func (h *OrganizationsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		problem.ServerError(w, r, err, h.Env)
		return
	}
	out := make([]organizationResponse, 0, len(items))
	for _, o := range items {
		out = append(out, toOrganizationResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrganizationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	item, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(*item))
}

func (h *OrganizationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Create(r.Context(), req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrganizationResponse(*item))
}

func (h *OrganizationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, h.Env)
	if !ok {
		return
	}
	var req organizationRequest
	if !h.readRequest(w, r, &req) {
		return
	}
	item, err := h.Service.Update(r.Context(), id, req.params())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(*item))
}

// Delete removes the organization and, through the schema, its groups and
// their members.
func (h *OrganizationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *OrganizationsHandler) readRequest(w http.ResponseWriter, r *http.Request, req *organizationRequest) bool {
	if !decodeJSON(w, r, req, h.Env) {
		return false
	}
	sanitize.Fields(&req.Name, &req.InstitutionName, &req.HeadquartersCountry)
	req.Address.clean()
	return validateRequest(w, r, req, h.Env)
}

func (h *OrganizationsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, organizations.ErrNotFound) {
		problem.NotFound(w, r, err, h.Env)
		return
	}
	problem.ServerError(w, r, err, h.Env)
}
