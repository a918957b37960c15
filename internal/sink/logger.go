package sink

import "github.com/sirupsen/logrus"

// LogHandler returns a handler that writes step events as structured log
// records.
func LogHandler(log *logrus.Entry) Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "step_log")
	return func(e StepEvent) {
		entry := log.WithFields(logrus.Fields{
			"step":        e.Step,
			"timestamp":   e.Timestamp,
			"mode":        e.Mode.String(),
			"orders":      e.Orders,
			"filled":      e.Filled,
			"failed":      e.Failed,
			"rejected":    e.Rejected,
			"success":     e.Success,
			"health":      e.Health,
			"error_count": e.ErrorCount,
			"pnl":         e.PnL.String(),
			"fees":        e.Fees.String(),
		})
		switch {
		case e.Terminal:
			entry.WithField("cause", e.Err).Error("run terminated by system failure")
		case e.Aborted:
			entry.WithField("cause", e.Err).Warn("timestep aborted")
		default:
			entry.Info("timestep settled")
		}
	}
}
