package netutil

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// PortExhaustedError is returned when no free port could be found within the
// probed range.
type PortExhaustedError struct {
	Preferred   int
	MaxAttempts int
}

func (e *PortExhaustedError) Error() string {
	return fmt.Sprintf("no available port found after %d attempts starting from %d", e.MaxAttempts, e.Preferred)
}

// DefaultMaxAttempts is the number of consecutive ports probed by
// FindAvailablePort when the caller does not override it.
const DefaultMaxAttempts = 10

// IsPortAvailable reports whether a TCP listener can currently be bound on the
// given port. The probe listener is closed before returning. Any bind error,
// including EADDRINUSE, yields false; this function never fails.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FindAvailablePort probes preferred, preferred+1, ... and returns the first
// port that can be bound. Each call is independent; there is no shared port
// registry, so the answer is always taken freshly from the OS. Callers on
// disjoint ranges may run concurrently.
func FindAvailablePort(preferred, maxAttempts int) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		candidate := preferred + i
		if IsPortAvailable(candidate) {
			return candidate, nil
		}
	}
	return 0, &PortExhaustedError{Preferred: preferred, MaxAttempts: maxAttempts}
}

// ResolvePort returns the preferred port when it is free, otherwise the next
// free port, logging when it had to fall back.
func ResolvePort(preferred int, logger *logrus.Logger) (int, error) {
	port, err := FindAvailablePort(preferred, DefaultMaxAttempts)
	if err != nil {
		return 0, err
	}
	if port != preferred && logger != nil {
		logger.WithFields(logrus.Fields{
			"requested": preferred,
			"resolved":  port,
		}).Warn("Requested port is busy, falling back")
	}
	return port, nil
}
