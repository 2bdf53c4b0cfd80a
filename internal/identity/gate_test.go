package identity

import (
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
)

var (
	shopper = &domain.User{ID: "u1", Role: domain.RoleUser}
	admin   = &domain.User{ID: "a1", Role: domain.RoleAdmin}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state SessionState
		req   Requirement
		want  Decision
	}{
		{"loading user view", SessionState{Loading: true}, RequireUser, Decision{Outcome: OutcomeLoading}},
		{"loading admin view", SessionState{Loading: true, User: admin}, RequireAdmin, Decision{Outcome: OutcomeLoading}},
		{"anonymous user view", SessionState{}, RequireUser, Decision{Outcome: OutcomeRedirect, Redirect: LoginPath}},
		{"anonymous admin view", SessionState{}, RequireAdmin, Decision{Outcome: OutcomeRedirect, Redirect: LoginPath}},
		{"shopper user view", SessionState{User: shopper}, RequireUser, Decision{Outcome: OutcomeRender}},
		{"shopper admin view", SessionState{User: shopper}, RequireAdmin, Decision{Outcome: OutcomeRedirect, Redirect: RootPath}},
		{"admin user view", SessionState{User: admin}, RequireUser, Decision{Outcome: OutcomeRender}},
		{"admin admin view", SessionState{User: admin}, RequireAdmin, Decision{Outcome: OutcomeRender}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.req))
		})
	}
}

func TestGate_ResolvesOnce(t *testing.T) {
	g := NewGate(RequireAdmin)
	assert.Equal(t, PhaseResolving, g.Phase())

	assert.Equal(t, OutcomeLoading, g.Observe(SessionState{Loading: true}).Outcome)
	assert.Equal(t, PhaseResolving, g.Phase())

	d := g.Observe(SessionState{User: shopper})
	assert.Equal(t, Decision{Outcome: OutcomeRedirect, Redirect: RootPath}, d)
	assert.Equal(t, PhaseRedirecting, g.Phase())

	// terminal: a later state does not change the decision
	assert.Equal(t, d, g.Observe(SessionState{User: admin}))
	assert.Equal(t, PhaseRedirecting, g.Phase())
}

func TestGate_ResetOnSessionEvent(t *testing.T) {
	g := NewGate(RequireUser)
	assert.Equal(t, OutcomeRender, g.Observe(SessionState{User: shopper}).Outcome)
	assert.Equal(t, PhaseAuthorized, g.Phase())

	// sign-out arrives
	g.Reset()
	assert.Equal(t, PhaseResolving, g.Phase())

	d := g.Observe(SessionState{})
	assert.Equal(t, Decision{Outcome: OutcomeRedirect, Redirect: LoginPath}, d)
	assert.Equal(t, PhaseRedirecting, g.Phase())
}

func TestPhaseAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "authorized", PhaseAuthorized.String())
	assert.Equal(t, "redirect", OutcomeRedirect.String())
}
