package domain

import "time"

// IncidentType distinguishes unplanned incidents from scheduled maintenance.
type IncidentType string

// Incident types.
const (
	IncidentTypeIncident    IncidentType = "incident"
	IncidentTypeMaintenance IncidentType = "maintenance"
)

// IsValid checks if the incident type is valid.
func (t IncidentType) IsValid() bool {
	return t == IncidentTypeIncident || t == IncidentTypeMaintenance
}

// IncidentStatus represents the lifecycle status of an incident.
type IncidentStatus string

// Incident statuses. Maintenance is only a valid starting status for
// maintenance records.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusMaintenance   IncidentStatus = "maintenance"
)

// IsValid checks if the status is one of the known values.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved,
		IncidentStatusMaintenance:
		return true
	}
	return false
}

// IsResolved reports whether the status is terminal.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// Impact represents how badly an incident affects customers.
type Impact string

// Impact levels.
const (
	ImpactMinor    Impact = "minor"
	ImpactMajor    Impact = "major"
	ImpactCritical Impact = "critical"
)

// IsValid checks if the impact is valid.
func (i Impact) IsValid() bool {
	return i == ImpactMinor || i == ImpactMajor || i == ImpactCritical
}

// Incident represents an outage or a scheduled maintenance window.
// Status caches the status of the newest update.
type Incident struct {
	ID                 string         `json:"id"`
	OrganizationID     string         `json:"organization_id"`
	Title              string         `json:"title"`
	Impact             Impact         `json:"impact"`
	Type               IncidentType   `json:"type"`
	Status             IncidentStatus `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	ResolvedAt         *time.Time     `json:"resolved_at"`
	ScheduledStartTime *time.Time     `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time     `json:"scheduled_end_time"`
	ServiceIDs         []string       `json:"service_ids"`
	Updates            []Update       `json:"updates,omitempty"`
	CreatedBy          string         `json:"created_by,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsResolved reports whether the incident reached its terminal status.
func (i *Incident) IsResolved() bool {
	return i.Status.IsResolved()
}

// PublicCopy returns a copy of the incident that only carries public
// updates. Actor ids are cleared.
func (i *Incident) PublicCopy() Incident {
	c := *i
	c.CreatedBy = ""
	c.Updates = make([]Update, 0, len(i.Updates))
	for _, u := range i.Updates {
		if u.IsPublic {
			c.Updates = append(c.Updates, u.PublicCopy())
		}
	}
	return c
}

// Update is one append-only entry in an incident timeline.
type Update struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Sequence   int64          `json:"sequence"`
	Message    string         `json:"message"`
	Status     IncidentStatus `json:"status"`
	IsPublic   bool           `json:"is_public"`
	CreatedBy  string         `json:"created_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PublicCopy returns the update without its author.
func (u Update) PublicCopy() Update {
	u.CreatedBy = ""
	return u
}
