package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger. JSON output when
// running under an orchestrator, human-readable text otherwise.
func SetupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if os.Getenv("WARDEN_LOG_FORMAT") == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}
	logrus.SetOutput(os.Stdout)
}
