package engine

import "time"

// DefaultConcurrency is the number of risk requests allowed in flight.
const DefaultConcurrency = 4

// DefaultCallTimeout bounds a single risk request.
const DefaultCallTimeout = 10 * time.Second
