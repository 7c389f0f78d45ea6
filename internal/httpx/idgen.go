package httpx

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var idSeq atomic.Uint64

// DefaultIDGenerator builds process-local order ids from the current time
// in microseconds plus an atomic sequence and a short random suffix.
// Microseconds alone collide under load.
func DefaultIDGenerator() string {
	seq := idSeq.Add(1)
	suffix := uuid.NewString()[:4]
	return fmt.Sprintf("ORD-%d-%d-%s", time.Now().UnixMicro(), seq, suffix)
}
