package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, Setup("debug", "development").GetLevel())
	assert.Equal(t, logrus.WarnLevel, Setup("warning", "development").GetLevel())
	assert.Equal(t, logrus.ErrorLevel, Setup("error", "development").GetLevel())
	assert.Equal(t, logrus.InfoLevel, Setup("nonsense", "development").GetLevel())
}

func TestSetupFormatter(t *testing.T) {
	prod := Setup("info", "production")
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Formatter)

	dev := Setup("info", "development")
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)
}
