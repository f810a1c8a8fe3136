package transport

import (
	"os"

	"github.com/sirupsen/logrus"
)

// PublishDisplay puts name into DisplayEnv. The returned func puts back whatever was there before
func PublishDisplay(name string) (restore func()) {
	prev, hadPrev := os.LookupEnv(DisplayEnv)
	if err := os.Setenv(DisplayEnv, name); err != nil {
		logrus.WithError(err).Errorln("Failed to set " + DisplayEnv)
	}
	return func() {
		var err error
		if hadPrev {
			err = os.Setenv(DisplayEnv, prev)
		} else {
			err = os.Unsetenv(DisplayEnv)
		}
		if err != nil {
			logrus.WithError(err).Errorln("Failed to restore " + DisplayEnv)
		}
	}
}
