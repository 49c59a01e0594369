package termstream

import "time"

const sweepInterval = time.Minute

// StartSweeping runs Sweep on a fixed interval until stop is closed.
func (s *Store) StartSweeping(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
