package license

import (
	"errors"

	"github.com/lib/pq"
)

// ErrKeyNotFound is returned by updates that target a nonexistent key.
var ErrKeyNotFound = errors.New("license: key not found")

// isUniqueViolation detects a Postgres unique-constraint failure, which the
// key-code insert path treats as a generation collision to retry.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
