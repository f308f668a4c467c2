package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFromEnvironment(t *testing.T) {
	tests := []struct {
		value string
		want  logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"nonsense", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run("level "+tt.value, func(t *testing.T) {
			t.Setenv("QC_LOG_LEVEL", tt.value)
			if got := newLogger().GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithCheck(t *testing.T) {
	entry := WithCheck("ContrastMeasure")
	if entry.Data["check"] != "ContrastMeasure" {
		t.Errorf("check field = %v", entry.Data["check"])
	}
}
