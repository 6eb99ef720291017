package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunSweeper calls Sweep every interval until ctx is cancelled. It runs
// independently of request traffic.
func RunSweeper(ctx context.Context, store Store, interval time.Duration) {
	if interval <= 0 {
		logrus.Warn("Session sweeper disabled: non-positive interval")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval.String()).Info("Session sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				logrus.WithError(err).Error("Session sweep failed")
				continue
			}
			if removed > 0 {
				logrus.WithField("removed", removed).Info("Expired sessions swept")
			}
		}
	}
}
