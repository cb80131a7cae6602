package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/sergeymorykov/events-backend/internal/retry"
)

// storeErr wraps a repository failure, marking driver and network faults as
// transient so callers' retry policies can tell them from constraint and
// data errors.
func storeErr(msg string, err error) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	if isTransient(err) {
		return retry.Transient(wrapped)
	}
	return wrapped
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 = connection exception, 53 = insufficient resources,
		// 57 = operator intervention (includes cannot_connect_now).
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		// Serialization failure and deadlock resolve on retry.
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
