package status

import (
	"testing"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/stretchr/testify/assert"
)

func services(statuses ...domain.ServiceStatus) []domain.Service {
	out := make([]domain.Service, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, domain.Service{Status: s})
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		services []domain.Service
		want     domain.ServiceStatus
	}{
		{"empty", nil, domain.ServiceStatusOperational},
		{"all operational", services(domain.ServiceStatusOperational, domain.ServiceStatusOperational), domain.ServiceStatusOperational},
		{"major outage wins", services(domain.ServiceStatusMajorOutage, domain.ServiceStatusOperational), domain.ServiceStatusMajorOutage},
		{"degraded beats maintenance", services(domain.ServiceStatusDegraded, domain.ServiceStatusMaintenance), domain.ServiceStatusDegraded},
		{"partial beats degraded", services(domain.ServiceStatusDegraded, domain.ServiceStatusPartialOutage), domain.ServiceStatusPartialOutage},
		{"maintenance only", services(domain.ServiceStatusMaintenance, domain.ServiceStatusOperational), domain.ServiceStatusMaintenance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.services))
		})
	}
}

func TestAggregate_AllCombinations(t *testing.T) {
	all := []domain.ServiceStatus{
		domain.ServiceStatusOperational,
		domain.ServiceStatusDegraded,
		domain.ServiceStatusPartialOutage,
		domain.ServiceStatusMajorOutage,
		domain.ServiceStatusMaintenance,
	}
	// worst first; operational is the fallback
	order := []domain.ServiceStatus{
		domain.ServiceStatusMajorOutage,
		domain.ServiceStatusPartialOutage,
		domain.ServiceStatusDegraded,
		domain.ServiceStatusMaintenance,
	}

	for mask := 0; mask < 1<<len(all); mask++ {
		present := make(map[domain.ServiceStatus]bool)
		var input []domain.ServiceStatus
		for i, s := range all {
			if mask&(1<<i) != 0 {
				present[s] = true
				input = append(input, s)
			}
		}

		want := domain.ServiceStatusOperational
		for _, s := range order {
			if present[s] {
				want = s
				break
			}
		}

		got := Aggregate(services(input...))
		assert.Equal(t, want, got, "statuses %v", input)

		// order of services must not matter
		reversed := make([]domain.ServiceStatus, len(input))
		for i := range input {
			reversed[len(input)-1-i] = input[i]
		}
		assert.Equal(t, got, Aggregate(services(reversed...)), "reversed %v", reversed)
	}
}
