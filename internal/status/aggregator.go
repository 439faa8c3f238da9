// Package status computes the overall status of an organization.
package status

import "github.com/bissquit/statusboard/internal/domain"

// precedence lists service statuses from worst to best. The first status
// present in a set of services wins.
var precedence = []domain.ServiceStatus{
	domain.ServiceStatusMajorOutage,
	domain.ServiceStatusPartialOutage,
	domain.ServiceStatusDegraded,
	domain.ServiceStatusMaintenance,
}

// Aggregate returns the worst status across services.
// An empty list reports operational.
func Aggregate(services []domain.Service) domain.ServiceStatus {
	seen := make(map[domain.ServiceStatus]bool, len(precedence))
	for _, s := range services {
		seen[s.Status] = true
	}

	for _, s := range precedence {
		if seen[s] {
			return s
		}
	}
	return domain.ServiceStatusOperational
}
