package command

import (
	"io"

	"github.com/sirupsen/logrus"
)

func testLogEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
