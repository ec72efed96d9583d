package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func NewLoggerService() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)

	if os.Getenv("APP_ENV") == "production" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
		Logger.SetLevel(logrus.InfoLevel)
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		Logger.SetLevel(logrus.DebugLevel)
	}
}
