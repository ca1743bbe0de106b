package utils

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		debug      bool
		debugLevel bool
	}{
		{debug: true, debugLevel: true},
		{debug: false, debugLevel: false},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.debug)
		if err != nil {
			t.Fatalf("NewLogger(%v): %v", tt.debug, err)
		}
		if got := logger.Core().Enabled(zap.DebugLevel); got != tt.debugLevel {
			t.Errorf("NewLogger(%v): debug enabled = %v", tt.debug, got)
		}
		if !logger.Core().Enabled(zap.InfoLevel) {
			t.Errorf("NewLogger(%v): info disabled", tt.debug)
		}
		_ = logger.Sync()
	}
}
