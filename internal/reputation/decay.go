package reputation

import (
	"context"
	"log"
	"time"

	"github.com/kanchu397/Chatogram/internal/profile"
)

// DefaultDecayInterval is the default period of the decay sweep.
const DefaultDecayInterval = 7 * 24 * time.Hour

// StartDecay runs the periodic reputation decay sweep until ctx is
// cancelled. Each sweep is a single store-level pass; no engine locks are
// held while it runs.
func StartDecay(ctx context.Context, store profile.Store, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDecayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[reputation] decay loop stopped")
			return
		case <-ticker.C:
			n, err := store.DecayReputation(ctx)
			if err != nil {
				log.Printf("[reputation] decay sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[reputation] decayed %d scores one step toward zero", n)
			}
		}
	}
}
