package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies a mutation broadcast on an organization channel.
type EventType string

// Event types.
const (
	EventServiceStatusChanged  EventType = "service_status_changed"
	EventServiceCreated        EventType = "service_created"
	EventServiceUpdated        EventType = "service_updated"
	EventServiceDeleted        EventType = "service_deleted"
	EventIncidentCreated       EventType = "incident_created"
	EventIncidentUpdated       EventType = "incident_updated"
	EventIncidentStatusChanged EventType = "incident_status_changed"
	EventIncidentUpdateAdded   EventType = "incident_update_added"
	EventIncidentDeleted       EventType = "incident_deleted"
)

// IsValid checks if the event type is part of the taxonomy.
func (t EventType) IsValid() bool {
	switch t {
	case EventServiceStatusChanged, EventServiceCreated, EventServiceUpdated,
		EventServiceDeleted, EventIncidentCreated, EventIncidentUpdated,
		EventIncidentStatusChanged, EventIncidentUpdateAdded, EventIncidentDeleted:
		return true
	}
	return false
}

// Event is a single notification delivered to channel subscribers.
// PublicData, when set, replaces Data for unauthenticated observers.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	OrganizationID string          `json:"organization_id"`
	Sequence       uint64          `json:"sequence"`
	Data           json.RawMessage `json:"data"`
	PublicData     json.RawMessage `json:"-"`
	Origin         string          `json:"-"`
	PublishedAt    time.Time       `json:"published_at"`
}

// ForPublic returns the event as public observers must see it.
func (e Event) ForPublic() Event {
	if e.PublicData != nil {
		e.Data = e.PublicData
	}
	e.PublicData = nil
	return e
}

// PublicViewer is implemented by payloads that carry data hidden from the
// public page.
type PublicViewer interface {
	PublicView() any
}

// IncidentEvent is the payload of incident_* events.
type IncidentEvent struct {
	Incident       Incident       `json:"incident"`
	Update         *Update        `json:"update,omitempty"`
	PreviousStatus IncidentStatus `json:"previous_status,omitempty"`
}

// NewIncidentEvent builds a payload; the incident timeline itself is not
// broadcast, only the update that triggered the event.
func NewIncidentEvent(incident *Incident, update *Update, previous IncidentStatus) IncidentEvent {
	inc := *incident
	inc.Updates = nil
	return IncidentEvent{Incident: inc, Update: update, PreviousStatus: previous}
}

// PublicView drops private update content and actor ids.
func (e IncidentEvent) PublicView() any {
	e.Incident = e.Incident.PublicCopy()
	e.Incident.Updates = nil
	if e.Update != nil {
		if e.Update.IsPublic {
			u := e.Update.PublicCopy()
			e.Update = &u
		} else {
			e.Update = nil
		}
	}
	return e
}

// ServiceEvent is the payload of service_* events.
type ServiceEvent struct {
	Service        Service       `json:"service"`
	PreviousStatus ServiceStatus `json:"previous_status,omitempty"`
}

// DeletedEvent is the payload of *_deleted events.
type DeletedEvent struct {
	ID string `json:"id"`
}
