//go:build !linux

package realtime

import "github.com/sirupsen/logrus"

// Setup is a no-op outside Linux.
func Setup(log *logrus.Entry) {
	log.Debug("no real-time setup on this platform")
}
