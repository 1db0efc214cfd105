package checkout

import (
	"context"
	"testing"
	"time"

	"jajanin-relay/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestStatusMonotonicProperty drives a session through random pushes, cancels and clock
// jumps and checks that a final status never changes and pending is never re-entered.
func TestStatusMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	codes := []string{"01", models.StatusCodePaid, models.StatusCodeFailed, "error"}

	properties.Property("status transitions are monotonic", prop.ForAll(
		func(ops []int) bool {
			clock := newFakeClock()
			m := NewManager("tab", &fakeBackend{}, noFee(), nil, Options{Now: clock.Now})
			s, _, err := m.Open(context.Background(), qrisRequest(15000))
			if err != nil {
				return false
			}

			terminalCalls := 0
			s.OnTerminal(func(Snapshot) { terminalCalls++ })

			prev := s.Status()
			for _, op := range ops {
				switch {
				case op < len(codes):
					s.Confirm(codes[op])
				case op == len(codes):
					s.Cancel(context.Background())
				default:
					clock.Advance(16 * time.Minute)
				}

				cur := s.Status()
				if prev.Final() && cur != prev {
					return false
				}
				if prev != models.PaymentStatusPending && cur == models.PaymentStatusPending {
					return false
				}
				if cur == models.PaymentStatusExpired && prev != models.PaymentStatusPending && prev != models.PaymentStatusExpired {
					return false
				}
				prev = cur
			}
			return terminalCalls <= 1 && (terminalCalls == 1) == prev.Final()
		},
		gen.SliceOf(gen.IntRange(0, len(codes)+1)),
	))

	properties.TestingRun(t)
}
