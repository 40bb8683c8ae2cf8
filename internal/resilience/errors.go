package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"no such host",
	"tls handshake timeout",
	"server closed idle connection",
	"database is locked",
	"conn busy",
	"sqlstate 40001",
	"sqlstate 57p01",
}

// IsTransient reports whether err looks like a temporary failure such as a
// network timeout, a refused connection or a busy database.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
