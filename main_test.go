package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/gamecore/internal/settings"
)

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	return &settings.Settings{
		Host:            "localhost",
		Port:            8080,
		ConfigDir:       "configs",
		Persistence:     settings.PersistenceMemory,
		SessionsDir:     filepath.Join(t.TempDir(), "sessions"),
		SQLitePath:      filepath.Join(t.TempDir(), "sessions.db"),
		SessionTTL:      24 * time.Hour,
		CleanupInterval: time.Hour,
		SyncInterval:    5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runCommand runs the command tree with args and returns its stdout
func runCommand(t *testing.T, s *settings.Settings, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand(s)
	cmd.Writer = &out
	cmd.ErrWriter = io.Discard
	err := cmd.Run(context.Background(), append([]string{"gamecore"}, args...))
	return out.String(), err
}

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}

	expectedAppName := "Game Core Server"
	if AppName != expectedAppName {
		t.Errorf("Expected app name %s, got %s", expectedAppName, AppName)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, testSettings(t), "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	expected := AppName + " v" + Version
	if !strings.Contains(out, expected) {
		t.Errorf("Expected %q, got %q", expected, out)
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := runCommand(t, testSettings(t), "--config-dir", "configs", "validate")
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "configurations are valid") {
		t.Errorf("Expected success summary, got %s", out)
	}
	for _, file := range []string{"classic.json", "duel.yaml", "tictactoe.yaml"} {
		if !strings.Contains(out, file) {
			t.Errorf("Expected %s in report", file)
		}
	}
}

func TestValidateCommand_InvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name": "x"}`), 0644); err != nil {
		t.Fatalf("Failed to write definition: %v", err)
	}

	out, err := runCommand(t, testSettings(t), "--config-dir", dir, "validate")
	if err == nil {
		t.Fatal("Expected error for invalid definition")
	}
	if !strings.Contains(out, "INVALID") {
		t.Errorf("Expected INVALID in report, got %s", out)
	}
}

func TestFlagsOverrideSettings(t *testing.T) {
	_, err := runCommand(t, testSettings(t), "--persistence", "redis", "validate")
	if err == nil || !strings.Contains(err.Error(), "unknown persistence") {
		t.Errorf("Expected unknown persistence error, got %v", err)
	}

	_, err = runCommand(t, testSettings(t), "--port", "70000", "validate")
	if err == nil || !strings.Contains(err.Error(), "port") {
		t.Errorf("Expected port error, got %v", err)
	}
}

func TestFlagDefaults(t *testing.T) {
	s := testSettings(t)
	cmd := newCommand(s)

	names := map[string]bool{}
	for _, flag := range cmd.Flags {
		for _, name := range flag.Names() {
			names[name] = true
		}
	}
	for _, want := range []string{"host", "port", "config-dir", "persistence", "debug", "ngrok"} {
		if !names[want] {
			t.Errorf("Expected flag %s", want)
		}
	}

	commands := map[string]bool{}
	for _, sub := range cmd.Commands {
		commands[sub.Name] = true
	}
	for _, want := range []string{"serve", "mcp", "validate", "version"} {
		if !commands[want] {
			t.Errorf("Expected command %s", want)
		}
	}
}

func TestInitializeServices(t *testing.T) {
	tests := []struct {
		name        string
		persistence string
	}{
		{"memory", settings.PersistenceMemory},
		{"file", settings.PersistenceFile},
		{"sqlite", settings.PersistenceSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(t)
			s.Persistence = tt.persistence

			svc, err := initializeServices(s, discardLogger())
			if err != nil {
				t.Fatalf("Failed to initialize services: %v", err)
			}
			defer svc.Close()

			if svc.game == nil {
				t.Fatal("Expected game service to be initialized")
			}
			if (svc.persistence == nil) != (tt.persistence == settings.PersistenceMemory) {
				t.Errorf("Unexpected persistence %T for %s", svc.persistence, tt.persistence)
			}

			info, err := svc.game.CreateSession(context.Background(), "classic")
			if err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
			if svc.persistence != nil && !svc.persistence.Exists(info.ID) {
				t.Errorf("Expected session %s to be persisted", info.ID)
			}
		})
	}
}

func TestInitializeServices_RestoresSessions(t *testing.T) {
	s := testSettings(t)
	s.Persistence = settings.PersistenceSQLite

	first, err := initializeServices(s, discardLogger())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	info, err := first.game.CreateSession(context.Background(), "classic")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := initializeServices(s, discardLogger())
	if err != nil {
		t.Fatalf("Failed to reinitialize services: %v", err)
	}
	defer second.Close()

	if _, err := second.game.GetSession(context.Background(), info.ID); err != nil {
		t.Errorf("Expected session %s to survive restart, got %v", info.ID, err)
	}
}

func TestInitializeServices_InvalidConfigDir(t *testing.T) {
	s := testSettings(t)
	s.ConfigDir = "/non/existent/path"

	if _, err := initializeServices(s, discardLogger()); err == nil {
		t.Error("Expected error for non-existent config directory")
	}
}

func TestPruneOrphanedSessions(t *testing.T) {
	s := testSettings(t)
	s.Persistence = settings.PersistenceFile

	svc, err := initializeServices(s, discardLogger())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	ctx := context.Background()
	kept, _ := svc.game.CreateSession(ctx, "classic")
	gone, _ := svc.game.CreateSession(ctx, "classic")
	if err := svc.persistence.Delete(gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if pruned := pruneOrphanedSessions(svc.sessions, svc.persistence, discardLogger()); pruned != 1 {
		t.Errorf("Expected 1 pruned session, got %d", pruned)
	}
	if svc.sessions.Count() != 1 {
		t.Errorf("Expected 1 session in memory, got %d", svc.sessions.Count())
	}
	if _, err := svc.sessions.Get(kept.ID); err != nil {
		t.Errorf("Expected %s to remain, got %v", kept.ID, err)
	}
}

func TestSessionCleanupRoutine(t *testing.T) {
	s := testSettings(t)
	svc, err := initializeServices(s, discardLogger())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	if _, err := svc.game.CreateSession(context.Background(), "classic"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sessionCleanupRoutine(ctx, svc.sessions, time.Nanosecond, 5*time.Millisecond, discardLogger())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svc.sessions.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if svc.sessions.Count() != 0 {
		t.Errorf("Expected expired session to be removed, got %d", svc.sessions.Count())
	}
}

func TestHandlerAndReachability(t *testing.T) {
	s := testSettings(t)
	svc, err := initializeServices(s, discardLogger())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	server := httptest.NewServer(svc.handler("http://127.0.0.1:0"))

	if !apiReachable(context.Background(), server.URL) {
		t.Error("Expected API to be reachable")
	}

	ping := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	resp, err := http.Post(server.URL+"/mcp", "application/json", strings.NewReader(ping))
	if err != nil {
		t.Fatalf("POST /mcp failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 from /mcp, got %d", resp.StatusCode)
	}

	server.Close()
	if apiReachable(context.Background(), server.URL) {
		t.Error("Expected closed API to be unreachable")
	}
}
