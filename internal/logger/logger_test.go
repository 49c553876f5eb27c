package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewBuildsForEachEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production", "staging", ""} {
		t.Run("env="+env, func(t *testing.T) {
			log, err := New(env)
			if err != nil {
				t.Fatalf("New(%q) returned error: %v", env, err)
			}
			defer log.Sync()

			if log == nil {
				t.Fatal("New returned a nil logger")
			}
			if !log.Core().Enabled(zapcore.InfoLevel) {
				t.Error("info level should be enabled")
			}
		})
	}
}

func TestProductionDisablesDebugLevel(t *testing.T) {
	log, err := New("production")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Sync()

	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("production logger should not emit debug logs")
	}
}

func TestDevelopmentEnablesDebugLevel(t *testing.T) {
	log, err := New("development")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Sync()

	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development logger should emit debug logs")
	}
}

func TestNewWithDefaultsNeverReturnsNil(t *testing.T) {
	t.Setenv("SERVER_ENV", "")
	if log := NewWithDefaults(); log == nil {
		t.Fatal("NewWithDefaults returned nil")
	}

	t.Setenv("SERVER_ENV", "production")
	if log := NewWithDefaults(); log == nil {
		t.Fatal("NewWithDefaults returned nil for production")
	}
}
