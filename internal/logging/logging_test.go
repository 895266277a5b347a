package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/PersistedObjects/internal/config"
	log "github.com/sirupsen/logrus"
)

func TestSetupWritesToRotatedFile(t *testing.T) {
	prevOut, prevLevel, prevFormatter := log.StandardLogger().Out, log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFormatter)
	})

	file := filepath.Join(t.TempDir(), "logs", "server.log")
	closer, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", File: file, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.WithField("model", "Tag").Debug("materialized")
	if err = closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"model":"Tag"`) {
		t.Fatalf("expected json entry, got %s", data)
	}
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	prevLevel := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prevLevel) })

	if _, err := Setup(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := Setup(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}
