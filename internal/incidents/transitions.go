package incidents

import (
	"fmt"

	"github.com/bissquit/statusboard/internal/domain"
)

// incidentVocabulary is the set of statuses an update may carry once a
// record is past its initial status.
var incidentVocabulary = map[domain.IncidentStatus]bool{
	domain.IncidentStatusInvestigating: true,
	domain.IncidentStatusIdentified:    true,
	domain.IncidentStatusMonitoring:    true,
	domain.IncidentStatusResolved:      true,
}

// maintenanceExits are the statuses a maintenance record may move to
// while it is still in maintenance.
var maintenanceExits = map[domain.IncidentStatus]bool{
	domain.IncidentStatusMaintenance: true,
	domain.IncidentStatusIdentified:  true,
	domain.IncidentStatusMonitoring:  true,
	domain.IncidentStatusResolved:    true,
}

// DefaultInitialStatus returns the status a new record starts in when
// the caller does not pick one.
func DefaultInitialStatus(t domain.IncidentType) domain.IncidentStatus {
	if t == domain.IncidentTypeMaintenance {
		return domain.IncidentStatusMaintenance
	}
	return domain.IncidentStatusInvestigating
}

// ValidateInitialStatus checks the status a new record is created with.
// Incidents start in investigating, identified or monitoring; maintenance
// records start in maintenance. No record can be created resolved.
func ValidateInitialStatus(t domain.IncidentType, s domain.IncidentStatus) error {
	if !s.IsValid() {
		return domain.NewValidationError("initial_status", fmt.Sprintf("unknown status %q", s))
	}

	switch t {
	case domain.IncidentTypeMaintenance:
		if s != domain.IncidentStatusMaintenance {
			return domain.NewValidationError("initial_status", "maintenance records start in maintenance")
		}
	default:
		if s == domain.IncidentStatusMaintenance || s == domain.IncidentStatusResolved {
			return domain.NewValidationError("initial_status",
				fmt.Sprintf("incidents cannot start in %s", s))
		}
	}
	return nil
}

// ValidateTransition checks that a record of type t currently in from may
// take an update with status to. Repeating the current status is allowed
// and records a note. Resolved is terminal for every type.
func ValidateTransition(t domain.IncidentType, from, to domain.IncidentStatus) error {
	if !to.IsValid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}

	if from.IsResolved() {
		return &domain.TransitionError{From: from, To: to, Reason: "resolved is terminal"}
	}

	if from == domain.IncidentStatusMaintenance {
		if t != domain.IncidentTypeMaintenance {
			return &domain.TransitionError{From: from, To: to, Reason: "only maintenance records use the maintenance status"}
		}
		if !maintenanceExits[to] {
			return &domain.TransitionError{From: from, To: to, Reason: "maintenance may only move to identified, monitoring or resolved"}
		}
		return nil
	}

	if !incidentVocabulary[to] {
		reason := "status is not valid for incidents"
		if t == domain.IncidentTypeMaintenance {
			reason = "maintenance records cannot return to maintenance"
		}
		return &domain.TransitionError{From: from, To: to, Reason: reason}
	}
	return nil
}
