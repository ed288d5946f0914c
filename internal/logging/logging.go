package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns the process logger. Production gets JSON at info level,
// everything else gets text at debug level.
func New(env string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if env == "prod" || env == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(logrus.InfoLevel)
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.DebugLevel)
	}

	return l
}
