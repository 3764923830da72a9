package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
)

type memOrganizations struct {
	items  map[int64]organizations.Organization
	nextID int64
}

func newMemOrganizations() *memOrganizations {
	return &memOrganizations{items: map[int64]organizations.Organization{}, nextID: 1}
}

func (m *memOrganizations) List(ctx context.Context) ([]organizations.Organization, error) {
	out := []organizations.Organization{}
	for id := int64(1); id < m.nextID; id++ {
		if o, ok := m.items[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrganizations) GetByID(ctx context.Context, id int64) (*organizations.Organization, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, organizations.ErrNotFound
	}
	return &o, nil
}

func (m *memOrganizations) Create(ctx context.Context, p organizations.Params) (*organizations.Organization, error) {
	o := organizations.Organization{
		ID:                  m.nextID,
		Name:                p.Name,
		Address:             p.Address,
		InstitutionName:     p.InstitutionName,
		HeadquartersCountry: p.HeadquartersCountry,
		Groups:              []groups.Group{},
	}
	m.items[o.ID] = o
	m.nextID++
	return &o, nil
}

func (m *memOrganizations) Update(ctx context.Context, id int64, p organizations.Params) (*organizations.Organization, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, organizations.ErrNotFound
	}
	o.Name, o.Address, o.InstitutionName, o.HeadquartersCountry = p.Name, p.Address, p.InstitutionName, p.HeadquartersCountry
	m.items[id] = o
	return &o, nil
}

func (m *memOrganizations) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return organizations.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func organizationBody() map[string]any {
	return map[string]any{
		"name": "Acme Running Club",
		"address": map[string]any{
			"street":       "Main Street",
			"number":       "12B",
			"neighborhood": "Centre",
			"city":         "Lisbon",
			"state":        "Lisboa",
			"country":      "Portugal",
			"zipCode":      "1100-001",
		},
		"institutionName":     "Acme Foundation",
		"headquartersCountry": "Portugal",
	}
}

func TestOrganizationsHandler_CreateThenGet(t *testing.T) {
	svc := newMemOrganizations()
	h := NewOrganizationsHandler(svc, testEnv)

	w := httptest.NewRecorder()
	h.Create(w, jsonRequest(t, http.MethodPost, "/api/organizations", organizationBody()))
	require.Equal(t, http.StatusCreated, w.Code)

	var created organizationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "Acme Running Club", created.Name)
	assert.Equal(t, "Lisbon", created.Address.City)
	assert.Equal(t, "1100-001", created.Address.ZipCode)
	assert.Equal(t, "Portugal", created.Address.Country)
	assert.NotNil(t, created.Groups)

	w = httptest.NewRecorder()
	h.Get(w, withID(httptest.NewRequest(http.MethodGet, "/api/organizations/1", nil), "1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"groups":[]`)
	assert.Contains(t, w.Body.String(), `"institutionName":"Acme Foundation"`)
}

func TestOrganizationsHandler_RequiredFields(t *testing.T) {
	h := NewOrganizationsHandler(newMemOrganizations(), testEnv)

	w := httptest.NewRecorder()
	h.Create(w, jsonRequest(t, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	p := decodeProblem(t, w)
	assert.Equal(t, "is required", p.Errors["institutionName"])
	assert.Equal(t, "is required", p.Errors["headquartersCountry"])
	assert.NotContains(t, p.Errors, "name")
}

func TestOrganizationsHandler_NestedGroups(t *testing.T) {
	svc := newMemOrganizations()
	h := NewOrganizationsHandler(svc, testEnv)
	svc.items[1] = organizations.Organization{
		ID:   1,
		Name: "Acme",
		Groups: []groups.Group{{
			ID: 3, Name: "Runners", OrganizationID: 1, OrganizationName: "Acme",
			Members: []groups.Member{{ID: 4, Name: "Ana", Age: 31, Email: "ana@example.org", GroupID: 3, GroupName: "Runners"}},
		}},
	}
	svc.nextID = 2

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/organizations", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []organizationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	require.Len(t, got[0].Groups, 1)
	require.Len(t, got[0].Groups[0].Members, 1)
	assert.Equal(t, "ana@example.org", got[0].Groups[0].Members[0].Email)
	assert.NotNil(t, got[0].Groups[0].Members[0].Marathons)
}

func TestOrganizationsHandler_UpdateDeleteMissing(t *testing.T) {
	h := NewOrganizationsHandler(newMemOrganizations(), testEnv)

	w := httptest.NewRecorder()
	h.Update(w, withID(jsonRequest(t, http.MethodPut, "/api/organizations/3", organizationBody()), "3"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.Delete(w, withID(httptest.NewRequest(http.MethodDelete, "/api/organizations/3", nil), "3"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrganizationsHandler_DeleteThenGet(t *testing.T) {
	svc := newMemOrganizations()
	h := NewOrganizationsHandler(svc, testEnv)
	_, err := svc.Create(context.Background(), organizations.Params{Name: "Acme", InstitutionName: "A", HeadquartersCountry: "PT"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.Delete(w, withID(httptest.NewRequest(http.MethodDelete, "/api/organizations/1", nil), "1"))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.Get(w, withID(httptest.NewRequest(http.MethodGet, "/api/organizations/1", nil), "1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
