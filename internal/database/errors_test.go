package database

import (
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"github.com/lib/pq"

	"github.com/sergeymorykov/events-backend/internal/retry"
)

func TestStoreErrClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"bad connection", driver.ErrBadConn, true},
		{"connection exception class", &pq.Error{Code: "08006"}, true},
		{"insufficient resources class", &pq.Error{Code: "53300"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock detected", &pq.Error{Code: "40P01"}, true},
		{"network timeout", &net.DNSError{IsTimeout: true}, true},
		{"connection reset string", errors.New("read tcp 10.0.0.1:5432: connection reset by peer"), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"undefined table", &pq.Error{Code: "42P01"}, false},
		{"plain error", errors.New("unexpected row shape"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := storeErr("failed to query", tt.err)
			if wrapped == nil {
				t.Fatal("expected an error")
			}
			if got := retry.IsTransient(wrapped); got != tt.transient {
				t.Errorf("transient = %v, want %v for %v", got, tt.transient, tt.err)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("wrapped error does not unwrap to the cause")
			}
		})
	}
}
