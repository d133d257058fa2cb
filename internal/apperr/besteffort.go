package apperr

import (
	"github.com/sirupsen/logrus"
)

// BestEffort records the failure of a side effect the caller has chosen not
// to fail on, such as a CAS unpin or a snapshot backfill. The error is
// dropped after logging.
func BestEffort(logger logrus.FieldLogger, op string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.WithError(err).WithField("op", op).Warn("best-effort operation failed")
}
