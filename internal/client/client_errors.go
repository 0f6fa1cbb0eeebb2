package client

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/koltyakov/fbxos/internal/domain"
)

// IsTimeout reports whether err is a request that ran out of time.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pe *domain.ProtocolError
	if errors.As(err, &pe) && pe.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// shortenError extracts the innermost meaningful message from nested network
// errors (e.g. *url.Error → *net.OpError → syscall) so that log lines stay
// concise (e.g. "connection refused" instead of the full dial trace).
func shortenError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err.Error()
	}
	return err.Error()
}
