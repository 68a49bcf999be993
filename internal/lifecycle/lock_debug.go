//go:build debug

package lifecycle

import "github.com/sasha-s/go-deadlock"

// mutex is a deadlock.Mutex in debug builds so lock-ordering bugs between
// a Lifecycle's own mutex and its gateways' mutexes surface during
// development instead of hanging in production.
type mutex = deadlock.Mutex
