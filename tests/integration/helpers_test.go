//go:build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/organizations"
	"github.com/bissquit/statusboard/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// tenant is an organization created for one test with tokens for its users.
type tenant struct {
	org    *domain.Organization
	admin  string
	member string
}

func (tn *tenant) path(suffix string) string {
	return "/api/v1/orgs/" + tn.org.ID + suffix
}

func randomSlug(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// newTenant creates an organization directly through the service layer;
// organizations are provisioned out of band, not through the console API.
func newTenant(t *testing.T, name string) *tenant {
	t.Helper()

	org, err := testApp.Organizations().Create(context.Background(), organizations.CreateOrganizationInput{
		Name: name,
		Slug: randomSlug("it"),
	})
	require.NoError(t, err)

	return &tenant{
		org:    org,
		admin:  issueToken(t, "admin-"+org.ID[:8], org.ID, domain.RoleAdmin),
		member: issueToken(t, "member-"+org.ID[:8], org.ID, domain.RoleMember),
	}
}

func issueToken(t *testing.T, userID, orgID string, role domain.Role) string {
	t.Helper()
	token, err := testTokens.Issue(domain.Actor{UserID: userID, OrganizationID: orgID, Role: role})
	require.NoError(t, err)
	return token
}

func createService(t *testing.T, client *testutil.Client, tn *tenant, name string, status domain.ServiceStatus) domain.Service {
	t.Helper()

	resp, err := client.POST(tn.path("/services"), map[string]any{
		"name":   name,
		"status": status,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var svc domain.Service
	testutil.DecodeData(t, resp, &svc)
	return svc
}

func createIncident(t *testing.T, client *testutil.Client, tn *tenant, payload map[string]any) domain.Incident {
	t.Helper()

	resp, err := client.POST(tn.path("/incidents"), payload)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create incident: status = %d: %s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var inc domain.Incident
	testutil.DecodeData(t, resp, &inc)
	return inc
}

func requireStatus(t *testing.T, resp *http.Response, err error, want int) {
	t.Helper()
	require.NoError(t, err)
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, testutil.ReadBody(t, resp))
	}
	_ = resp.Body.Close()
}
