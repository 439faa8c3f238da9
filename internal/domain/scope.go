package domain

// Role is the console role carried by an access token.
type Role string

// Roles.
const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether r is at least min.
func (r Role) HasPermission(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Scope is the tenant and actor a core operation runs on behalf of.
type Scope struct {
	OrganizationID string
	ActorID        string
}

// NewScope creates a scope for the given organization and acting user.
func NewScope(organizationID, actorID string) Scope {
	return Scope{OrganizationID: organizationID, ActorID: actorID}
}

// Validate checks that the scope names a tenant.
func (s Scope) Validate() error {
	if s.OrganizationID == "" {
		return &ValidationError{Field: "organization_id", Reason: "required"}
	}
	return nil
}

// Actor is an authenticated console user bound to one organization.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           Role
}

// Scope returns the tenant scope the actor operates in.
func (a Actor) Scope() Scope {
	return NewScope(a.OrganizationID, a.UserID)
}
