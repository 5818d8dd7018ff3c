//go:build linux

package realtime

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Setup locks the process address space and raises the priority. Both
// steps usually need elevated privileges.
func Setup(log *logrus.Entry) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.WithError(err).Warn("mlockall failed, pages may be swapped out")
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, -20); err != nil {
		log.WithError(err).Warn("unable to raise process priority")
	}
}
