package mysqlwire

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// defaultLogger routes driver diagnostics through logrus rather than a
// bare fmt.Printf, per SPEC_FULL.md §4.10. Protocol-fatal errors log at
// Error, everything else the driver hands it logs at Warn (Print is the
// narrow Logger interface the teacher's *log.Logger already satisfies;
// level selection happens here, not at the call site).
type defaultLogger struct{}

func (defaultLogger) Print(v ...any) {
	if len(v) == 1 {
		if err, ok := v[0].(error); ok {
			logrus.WithField("component", "mysqlwire").Error(err)
			return
		}
	}
	logrus.WithField("component", "mysqlwire").Warn(fmt.Sprint(v...))
}

// LogAcquire and LogRelease back the pool's echo option (SPEC_FULL.md
// §4.10): one logrus Info-level line per acquire/release, named for
// the action the pool took rather than a generic "pool event".
func (s *Session) LogAcquire() {
	logrus.WithField("component", "mysqlwire/pool").WithField("thread_id", s.threadID).Info("acquired session")
}

func (s *Session) LogRelease() {
	logrus.WithField("component", "mysqlwire/pool").WithField("thread_id", s.threadID).Info("released session")
}

// sessionLogf emits a Debug-level trace line when the session was
// configured with Debug: true (spec.md §4.4's handshake flow otherwise
// logs only the auth-switch warning, matching the teacher's minimal
// default logging posture).
func (s *Session) sessionLogf(format string, args ...any) {
	if !s.cfg.Debug {
		return
	}
	logrus.WithFields(logrus.Fields{
		"component": "mysqlwire",
		"thread_id": s.threadID,
	}).Debugf(format, args...)
}
