//go:build !debug

package lifecycle

import "sync"

// mutex is a plain sync.Mutex outside debug builds.
type mutex = sync.Mutex
