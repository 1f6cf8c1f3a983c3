package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/auction-settlement/internal/config"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"chatty", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		log, err := New(config.LogConfig{Level: tc.level, Encoding: "console"})
		if err != nil {
			t.Fatalf("%s: %v", tc.level, err)
		}
		if !log.Core().Enabled(tc.want) {
			t.Fatalf("%s: level %s disabled", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && log.Core().Enabled(tc.want-1) {
			t.Fatalf("%s: level below %s enabled", tc.level, tc.want)
		}
	}
}
