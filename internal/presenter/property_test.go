package presenter

import (
	"context"
	"sync"
	"testing"
	"time"

	"jajanin-relay/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPresentationOrderProperty checks that any batch of alerts is shown in enqueue order
// and that every alert runs showing, hiding, idle before the next one starts.
func TestPresentationOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("alerts are presented one at a time in FIFO order", prop.ForAll(
		func(names []string) bool {
			p := New(Options{
				Settings:       &Settings{Duration: 3},
				HideTransition: time.Millisecond,
				TimeUnit:       time.Microsecond * 300,
			}, nil, nil, nil)

			var mu sync.Mutex
			var got []Transition
			allIdle := make(chan struct{})
			p.OnTransition(func(tr Transition) {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, tr)
				if len(got) == 3*len(names) {
					close(allIdle)
				}
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = p.Run(ctx) }()

			for _, n := range names {
				p.Enqueue(models.AlertEvent{SupporterName: n, Amount: 1})
			}

			select {
			case <-allIdle:
			case <-time.After(5 * time.Second):
				return false
			}

			mu.Lock()
			defer mu.Unlock()
			cycle := []State{StateShowing, StateHiding, StateIdle}
			for i, tr := range got {
				if tr.State != cycle[i%3] || tr.Alert.SupporterName != names[i/3] {
					return false
				}
				if i > 0 && tr.Seq != got[i-1].Seq+1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.AlphaString()).SuchThat(func(v []string) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}
