package strategy

import (
	"time"

	"bookbot-go/internal/risk"
	"bookbot-go/internal/signal"
)

// riskGate runs the Risk Guard ahead of discretionary logic and owns the timers
// that follow a forced exit. Only the owning strategy's Decide mutates it.
type riskGate struct {
	guard    *risk.Guard
	policy   risk.GatePolicy
	cooldown time.Duration
	rearm    time.Duration

	exitReadyAt  time.Time
	entryReadyAt time.Time
}

func newRiskGate(p Params, policy risk.GatePolicy) *riskGate {
	return &riskGate{
		guard:    risk.NewGuard(p.StopLoss, p.TakeProfit, p.Aggressiveness),
		policy:   policy,
		cooldown: p.RiskCooldown,
		rearm:    p.ExitRearm,
	}
}

// check returns a forced exit when a threshold is breached. gated is true when
// discretionary logic must be skipped for this tick.
func (g *riskGate) check(t signal.Tick) (exit *signal.Signal, gated bool) {
	if t.Position.Flat() {
		return nil, false
	}
	if !t.Ts.Before(g.exitReadyAt) {
		if exit = g.guard.Check(t); exit != nil {
			g.exitReadyAt = t.Ts.Add(g.rearm)
			g.entryReadyAt = t.Ts.Add(g.cooldown)
			return exit, true
		}
	}
	return nil, g.policy == risk.GateFull
}

// cooling reports whether a recent forced exit still blocks discretionary signals.
func (g *riskGate) cooling(ts time.Time) bool { return ts.Before(g.entryReadyAt) }
