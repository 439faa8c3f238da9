//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidents_Lifecycle(t *testing.T) {
	tn := newTenant(t, "Lifecycle Org")
	client := newTestClient(t).As(t, tn.member)

	api := createService(t, client, tn, "API", domain.ServiceStatusDegraded)

	inc := createIncident(t, client, tn, map[string]any{
		"title":       "Elevated API latency",
		"impact":      "major",
		"type":        "incident",
		"service_ids": []string{api.ID},
	})
	assert.Equal(t, domain.IncidentStatusInvestigating, inc.Status)
	require.Len(t, inc.Updates, 1)
	assert.Equal(t, int64(1), inc.Updates[0].Sequence)
	assert.True(t, inc.Updates[0].IsPublic)

	resp, err := client.POST(tn.path("/incidents/"+inc.ID+"/updates"), map[string]any{
		"message": "Root cause found in connection pool",
		"status":  "identified",
	})
	requireStatus(t, resp, err, http.StatusCreated)

	resp, err = client.POST(tn.path("/incidents/"+inc.ID+"/updates"), map[string]any{
		"message":   "paging the database team",
		"is_public": false,
	})
	requireStatus(t, resp, err, http.StatusCreated)

	resp, err = client.PUT(tn.path("/incidents/"+inc.ID+"/status"), map[string]any{
		"status": "monitoring",
	})
	requireStatus(t, resp, err, http.StatusOK)

	resp, err = client.POST(tn.path("/incidents/"+inc.ID+"/resolve"), map[string]any{
		"message": "Latency is back to normal",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved domain.Incident
	testutil.DecodeData(t, resp, &resolved)

	assert.Equal(t, domain.IncidentStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	resp, err = client.GET(tn.path("/incidents/" + inc.ID + "/updates"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updates []domain.Update
	testutil.DecodeData(t, resp, &updates)

	require.Len(t, updates, 5)
	wantStatus := []domain.IncidentStatus{
		domain.IncidentStatusInvestigating,
		domain.IncidentStatusIdentified,
		domain.IncidentStatusIdentified,
		domain.IncidentStatusMonitoring,
		domain.IncidentStatusResolved,
	}
	for i, u := range updates {
		assert.Equal(t, int64(i+1), u.Sequence)
		assert.Equal(t, wantStatus[i], u.Status)
		if i > 0 {
			assert.True(t, u.CreatedAt.After(updates[i-1].CreatedAt), "update %d must sort after %d", i+1, i)
		}
	}
	assert.False(t, updates[2].IsPublic)
	assert.True(t, resolved.ResolvedAt.Equal(updates[4].CreatedAt))
}

func TestIncidents_ResolvedIsTerminal(t *testing.T) {
	tn := newTenant(t, "Terminal Org")
	client := newTestClient(t).As(t, tn.member)

	svc := createService(t, client, tn, "Web", domain.ServiceStatusOperational)
	inc := createIncident(t, client, tn, map[string]any{
		"title":       "Checkout errors",
		"impact":      "critical",
		"type":        "incident",
		"service_ids": []string{svc.ID},
	})

	resp, err := client.POST(tn.path("/incidents/"+inc.ID+"/resolve"), map[string]any{"message": "Fixed"})
	requireStatus(t, resp, err, http.StatusOK)

	resp, err = client.POST(tn.path("/incidents/"+inc.ID+"/updates"), map[string]any{
		"message": "one more thing",
		"status":  "monitoring",
	})
	requireStatus(t, resp, err, http.StatusConflict)

	resp, err = client.PATCH(tn.path("/incidents/"+inc.ID), map[string]any{"title": "renamed"})
	requireStatus(t, resp, err, http.StatusConflict)

	resp, err = client.GET(tn.path("/incidents/" + inc.ID))
	require.NoError(t, err)
	var got domain.Incident
	testutil.DecodeData(t, resp, &got)
	assert.Equal(t, "Checkout errors", got.Title)
	assert.Len(t, got.Updates, 2)
}

func TestIncidents_UpdatesAreImmutable(t *testing.T) {
	tn := newTenant(t, "Immutable Org")
	client := newTestClient(t).As(t, tn.member)

	svc := createService(t, client, tn, "Queue", domain.ServiceStatusOperational)
	inc := createIncident(t, client, tn, map[string]any{
		"title":       "Delayed jobs",
		"impact":      "minor",
		"type":        "incident",
		"service_ids": []string{svc.ID},
	})
	updateID := inc.Updates[0].ID

	resp, err := client.PATCH(tn.path("/incidents/"+inc.ID+"/updates/"+updateID), map[string]any{"message": "edited"})
	requireStatus(t, resp, err, http.StatusMethodNotAllowed)

	resp, err = client.DELETE(tn.path("/incidents/" + inc.ID + "/updates/" + updateID))
	requireStatus(t, resp, err, http.StatusMethodNotAllowed)

	resp, err = client.GET(tn.path("/incidents/" + inc.ID + "/updates"))
	require.NoError(t, err)
	var updates []domain.Update
	testutil.DecodeData(t, resp, &updates)
	require.Len(t, updates, 1)
	assert.Equal(t, inc.Updates[0].Message, updates[0].Message)
}

func TestIncidents_Maintenance(t *testing.T) {
	tn := newTenant(t, "Maintenance Org")
	client := newTestClient(t).As(t, tn.member)

	db := createService(t, client, tn, "Database", domain.ServiceStatusOperational)
	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	inc := createIncident(t, client, tn, map[string]any{
		"title":                "Database upgrade",
		"impact":               "minor",
		"type":                 "maintenance",
		"service_ids":          []string{db.ID},
		"scheduled_start_time": start,
		"scheduled_end_time":   start.Add(2 * time.Hour),
	})
	assert.Equal(t, domain.IncidentStatusMaintenance, inc.Status)
	assert.Equal(t, "Maintenance scheduled: Database upgrade", inc.Updates[0].Message)

	resp, err := client.PUT(tn.path("/incidents/"+inc.ID+"/status"), map[string]any{"status": "identified"})
	requireStatus(t, resp, err, http.StatusOK)

	resp, err = client.PUT(tn.path("/incidents/"+inc.ID+"/status"), map[string]any{"status": "maintenance"})
	requireStatus(t, resp, err, http.StatusConflict)
}

func TestIncidents_CreateValidation(t *testing.T) {
	tn := newTenant(t, "Validation Org")
	client := newTestClient(t).As(t, tn.member)
	svc := createService(t, client, tn, "API", domain.ServiceStatusOperational)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"unknown service", map[string]any{
			"title": "x", "impact": "minor", "type": "incident",
			"service_ids": []string{"00000000-0000-0000-0000-000000000000"},
		}},
		{"incident with schedule", map[string]any{
			"title": "x", "impact": "minor", "type": "incident",
			"service_ids":          []string{svc.ID},
			"scheduled_start_time": time.Now().UTC(),
		}},
		{"maintenance without schedule", map[string]any{
			"title": "x", "impact": "minor", "type": "maintenance",
			"service_ids": []string{svc.ID},
		}},
		{"incident starting resolved", map[string]any{
			"title": "x", "impact": "minor", "type": "incident",
			"service_ids":    []string{svc.ID},
			"initial_status": "resolved",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.As(t, tn.member).POST(tn.path("/incidents"), tt.payload)
			requireStatus(t, resp, err, http.StatusBadRequest)
		})
	}

	resp, err := client.GET(tn.path("/incidents"))
	require.NoError(t, err)
	var list []domain.Incident
	testutil.DecodeData(t, resp, &list)
	assert.Empty(t, list)
}

func TestIncidents_DeleteOnlyResolved(t *testing.T) {
	tn := newTenant(t, "Delete Org")
	client := newTestClient(t).As(t, tn.member)

	svc := createService(t, client, tn, "CDN", domain.ServiceStatusOperational)
	inc := createIncident(t, client, tn, map[string]any{
		"title":       "Stale assets",
		"impact":      "minor",
		"type":        "incident",
		"service_ids": []string{svc.ID},
	})

	resp, err := client.DELETE(tn.path("/incidents/" + inc.ID))
	requireStatus(t, resp, err, http.StatusConflict)

	resp, err = client.DELETE(tn.path("/services/" + svc.ID))
	requireStatus(t, resp, err, http.StatusConflict)

	resp, err = client.POST(tn.path("/incidents/"+inc.ID+"/resolve"), map[string]any{"message": "Purged"})
	requireStatus(t, resp, err, http.StatusOK)

	resp, err = client.DELETE(tn.path("/incidents/" + inc.ID))
	requireStatus(t, resp, err, http.StatusNoContent)

	resp, err = client.GET(tn.path("/incidents/" + inc.ID))
	requireStatus(t, resp, err, http.StatusNotFound)
}

func TestIncidents_ListFilters(t *testing.T) {
	tn := newTenant(t, "Filter Org")
	client := newTestClient(t).As(t, tn.member)
	svc := createService(t, client, tn, "API", domain.ServiceStatusOperational)

	first := createIncident(t, client, tn, map[string]any{
		"title": "first", "impact": "minor", "type": "incident", "service_ids": []string{svc.ID},
	})
	second := createIncident(t, client, tn, map[string]any{
		"title": "second", "impact": "minor", "type": "incident", "service_ids": []string{svc.ID},
	})
	resp, err := client.POST(tn.path("/incidents/"+first.ID+"/resolve"), map[string]any{"message": "done"})
	requireStatus(t, resp, err, http.StatusOK)

	resp, err = client.GET(tn.path("/incidents?state=active"))
	require.NoError(t, err)
	var active []domain.Incident
	testutil.DecodeData(t, resp, &active)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	resp, err = client.GET(tn.path("/incidents"))
	require.NoError(t, err)
	var all []domain.Incident
	testutil.DecodeData(t, resp, &all)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	resp, err = client.GET(tn.path("/incidents?limit=1"))
	require.NoError(t, err)
	var limited []domain.Incident
	testutil.DecodeData(t, resp, &limited)
	assert.Len(t, limited, 1)
}
