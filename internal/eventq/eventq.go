// Package eventq moves round progress between goroutines. Producers never
// block: a slow or absent observer loses events instead of stalling a
// running round.
package eventq

// Offer performs a non-blocking send.
// It returns true when the value was sent and false when the channel is full
// or closed.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// Bridge consumes src until it closes, handing every value to each observer
// in order and then to dst. Observers run on the bridge goroutine and must
// not block; nil observers are skipped. Sends to dst block, so the terminal
// consumer sees every event; dst may be nil and is closed once src drains.
// The returned channel closes after everything has been delivered.
func Bridge(src <-chan any, dst chan<- any, observers ...func(any)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range src {
			for _, obs := range observers {
				if obs != nil {
					obs(ev)
				}
			}
			if dst != nil {
				dst <- ev
			}
		}
		if dst != nil {
			close(dst)
		}
	}()
	return done
}
