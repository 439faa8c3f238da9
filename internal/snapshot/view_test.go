package snapshot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	catalogmemory "github.com/bissquit/statusboard/internal/catalog/memory"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/incidents"
	incidentsmemory "github.com/bissquit/statusboard/internal/incidents/memory"
	"github.com/bissquit/statusboard/internal/organizations"
	orgmemory "github.com/bissquit/statusboard/internal/organizations/memory"
	"github.com/bissquit/statusboard/internal/snapshot"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, domain.EventType, any) {}

type fixture struct {
	orgs      *organizations.Service
	catalog   *catalog.Service
	incidents *incidents.Service
	org       *domain.Organization
	scope     domain.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	orgs := organizations.NewService(orgmemory.NewRepository(), organizations.NewSlugCache(time.Minute))
	incidentRepo := incidentsmemory.NewRepository()
	cat := catalog.NewService(catalogmemory.NewRepository(), nopPublisher{}, incidentRepo)
	inc := incidents.NewService(incidentRepo, cat, nopPublisher{})

	org, err := orgs.Create(ctx, organizations.CreateOrganizationInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	return &fixture{
		orgs:      orgs,
		catalog:   cat,
		incidents: inc,
		org:       org,
		scope:     domain.NewScope(org.ID, "admin-1"),
	}
}

func (f *fixture) view(window time.Duration) *snapshot.View {
	return snapshot.NewView(f.orgs, f.catalog, f.incidents, window)
}

func (f *fixture) service(t *testing.T, name string, st domain.ServiceStatus) *domain.Service {
	t.Helper()
	svc, err := f.catalog.Create(context.Background(), f.scope, catalog.CreateServiceInput{Name: name, Status: st})
	require.NoError(t, err)
	return svc
}

func (f *fixture) incident(t *testing.T, title string, serviceID string) *domain.Incident {
	t.Helper()
	inc, err := f.incidents.Create(context.Background(), f.scope, incidents.CreateInput{
		Title:      title,
		Impact:     domain.ImpactMajor,
		Type:       domain.IncidentTypeIncident,
		ServiceIDs: []string{serviceID},
	})
	require.NoError(t, err)
	return inc
}

func TestView_Snapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api := f.service(t, "API", domain.ServiceStatusDegraded)
	f.service(t, "Web", domain.ServiceStatusMaintenance)

	active := f.incident(t, "API latency", api.ID)
	_, err := f.incidents.AppendUpdate(ctx, f.scope, active.ID, incidents.AppendInput{
		Message:  "paging the db team",
		IsPublic: false,
	})
	require.NoError(t, err)

	old := f.incident(t, "Old outage", api.ID)
	_, err = f.incidents.Resolve(ctx, f.scope, old.ID, "Fixed")
	require.NoError(t, err)

	snap, err := f.view(0).SnapshotBySlug(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, f.org.ID, snap.Organization.ID)
	assert.Equal(t, domain.ServiceStatusDegraded, snap.OverallStatus)
	assert.Len(t, snap.Services, 2)

	require.Len(t, snap.ActiveIncidents, 1)
	assert.Equal(t, active.ID, snap.ActiveIncidents[0].ID)
	assert.Len(t, snap.ActiveIncidents[0].Updates, 1, "private update must be hidden")

	require.Len(t, snap.RecentIncidents, 1)
	assert.Equal(t, old.ID, snap.RecentIncidents[0].ID)

	byID, err := f.view(0).Snapshot(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.OverallStatus, byID.OverallStatus)
}

func TestView_RecentWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api := f.service(t, "API", domain.ServiceStatusOperational)
	inc := f.incident(t, "Blip", api.ID)
	_, err := f.incidents.Resolve(ctx, f.scope, inc.ID, "Recovered")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	snap, err := f.view(time.Millisecond).SnapshotBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, snap.RecentIncidents)
}

func TestView_RecentIncidents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.view(0)

	api := f.service(t, "API", domain.ServiceStatusOperational)
	var resolved []string
	for i := 0; i < 3; i++ {
		inc := f.incident(t, "Blip", api.ID)
		_, err := f.incidents.Resolve(ctx, f.scope, inc.ID, "Recovered")
		require.NoError(t, err)
		resolved = append(resolved, inc.ID)
		time.Sleep(2 * time.Millisecond)
	}
	f.incident(t, "Still open", api.ID)

	list, err := v.RecentIncidents(ctx, "acme", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, resolved[2], list[0].ID, "newest first")
	assert.Equal(t, resolved[1], list[1].ID)

	list, err = v.RecentIncidents(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = v.RecentIncidents(ctx, "acme", snapshot.MaxRecentLimit+1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = v.RecentIncidents(ctx, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestView_EmptyOrganization(t *testing.T) {
	f := newFixture(t)

	snap, err := f.view(0).SnapshotBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, snap.OverallStatus)
	assert.Empty(t, snap.Services)
	assert.Empty(t, snap.ActiveIncidents)
	assert.Empty(t, snap.RecentIncidents)

	_, err = f.view(0).SnapshotBySlug(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestView_ReflectsLatestMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.view(0)

	api := f.service(t, "API", domain.ServiceStatusOperational)

	summary, err := v.Summary(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, summary.OverallStatus)

	_, err = f.catalog.SetStatus(ctx, f.scope, api.ID, domain.ServiceStatusMajorOutage)
	require.NoError(t, err)
	f.incident(t, "Down", api.ID)

	summary, err = v.Summary(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusMajorOutage, summary.OverallStatus)
	assert.Equal(t, 1, summary.ActiveIncidents)
	assert.Equal(t, "acme", summary.Slug)
}

func TestHandler_PublicRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api := f.service(t, "API", domain.ServiceStatusPartialOutage)
	inc := f.incident(t, "API errors", api.ID)
	_, err := f.incidents.AppendUpdate(ctx, f.scope, inc.ID, incidents.AppendInput{Message: "internal", IsPublic: false})
	require.NoError(t, err)

	_, err = f.orgs.Create(ctx, organizations.CreateOrganizationInput{Name: "Other", Slug: "other"})
	require.NoError(t, err)

	r := chi.NewRouter()
	snapshot.NewHandler(f.view(0)).RegisterRoutes(r)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/public/acme/")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get("/public/acme/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Data snapshot.Summary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, domain.ServiceStatusPartialOutage, summary.Data.OverallStatus)

	rec = get("/public/acme/incidents/" + inc.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Data domain.Incident `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&one))
	assert.Len(t, one.Data.Updates, 1)

	// an incident is not reachable through another organization's slug
	rec = get("/public/other/incidents/" + inc.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/public/nope/services")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/public/acme/incidents")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/public/acme/incidents/recent?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/public/acme/incidents/recent?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_PublicRoutesOmitActors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api := f.service(t, "API", domain.ServiceStatusDegraded)
	active := f.incident(t, "Slow", api.ID)
	_, err := f.incidents.AppendUpdate(ctx, f.scope, active.ID, incidents.AppendInput{Message: "looking", IsPublic: true})
	require.NoError(t, err)
	done := f.incident(t, "Fixed", api.ID)
	_, err = f.incidents.Resolve(ctx, f.scope, done.ID, "Recovered")
	require.NoError(t, err)

	r := chi.NewRouter()
	snapshot.NewHandler(f.view(0)).RegisterRoutes(r)

	for _, path := range []string{
		"/public/acme/",
		"/public/acme/incidents",
		"/public/acme/incidents/recent",
		"/public/acme/incidents/" + active.ID,
		"/public/acme/incidents/" + done.ID,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "created_by", path)
		assert.NotContains(t, rec.Body.String(), f.scope.ActorID, path)
	}
}
