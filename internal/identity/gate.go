// Package identity resolves sessions and decides whether a protected view
// may render. The gate only steers navigation; data access is authorized
// again by every service call.
package identity

import (
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

const (
	LoginPath = "/login"
	RootPath  = "/"
)

// SessionState is the current view of the session. Loading is true while
// the session is still being resolved.
type SessionState struct {
	Loading bool
	User    *domain.User
}

type Requirement int

const (
	RequireUser Requirement = iota
	RequireAdmin
)

type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeRedirect
	OutcomeRender
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "render"
	}
}

type Decision struct {
	Outcome Outcome
	// Redirect is set only when Outcome is OutcomeRedirect.
	Redirect string
}

// Decide maps a session state onto what a protected view should do.
func Decide(s SessionState, req Requirement) Decision {
	switch {
	case s.Loading:
		return Decision{Outcome: OutcomeLoading}
	case s.User == nil:
		return Decision{Outcome: OutcomeRedirect, Redirect: LoginPath}
	case req == RequireAdmin && !s.User.IsAdmin():
		return Decision{Outcome: OutcomeRedirect, Redirect: RootPath}
	default:
		return Decision{Outcome: OutcomeRender}
	}
}

type Phase int

const (
	PhaseResolving Phase = iota
	PhaseAuthorized
	PhaseRedirecting
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseAuthorized:
		return "authorized"
	default:
		return "redirecting"
	}
}

// Gate is the per-view state machine. Once it leaves PhaseResolving it keeps
// its decision until Reset is called for a fresh session event.
type Gate struct {
	mu       sync.Mutex
	req      Requirement
	phase    Phase
	decision Decision
}

func NewGate(req Requirement) *Gate {
	return &Gate{req: req, decision: Decision{Outcome: OutcomeLoading}}
}

// Observe feeds a session state to the gate and returns the current decision.
func (g *Gate) Observe(s SessionState) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseResolving {
		return g.decision
	}

	g.decision = Decide(s, g.req)
	switch g.decision.Outcome {
	case OutcomeRender:
		g.phase = PhaseAuthorized
	case OutcomeRedirect:
		g.phase = PhaseRedirecting
	}
	return g.decision
}

// Reset returns the gate to PhaseResolving.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = PhaseResolving
	g.decision = Decision{Outcome: OutcomeLoading}
}

func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}
