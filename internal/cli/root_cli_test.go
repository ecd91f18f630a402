package cli

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

var configEnv = []string{
	"GITLAB_URL", "GITLAB_TOKEN", "SENTRY_URL", "SENTRY_TOKEN", "SENTRY_ORG_SLUG",
	"SENTRY_DSN", "SENTRY_ENV", "G2S_CONFIG",
}

func withoutEnv(keys ...string) []string {
	out := make([]string, 0, len(os.Environ()))
	for _, e := range os.Environ() {
		name, _, _ := strings.Cut(e, "=")
		drop := false
		for _, k := range keys {
			if name == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, e)
		}
	}
	return out
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	// internal/cli -> repo root
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func goExe() string {
	if runtime.GOOS == "windows" {
		return "go.exe"
	}
	return "go"
}

func buildBinary(t *testing.T) string {
	t.Helper()

	outPath := filepath.Join(t.TempDir(), "gitlab2sentry-test")
	if runtime.GOOS == "windows" {
		outPath += ".exe"
	}

	cmd := exec.Command(goExe(), "build", "-o", outPath, "./cmd/gitlab2sentry")
	cmd.Dir = repoRoot(t)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build gitlab2sentry binary: %v; output=%s", err, string(out))
	}

	return outPath
}

func requireExitCode(t *testing.T, err error, out []byte, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected non-zero exit; output=%s", string(out))
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T: %v; output=%s", err, err, string(out))
	}
	if code := exitErr.ProcessState.ExitCode(); code != want {
		t.Fatalf("expected exit code %d, got %d; output=%s", want, code, string(out))
	}
}

func TestRoot_ExitCode3_WhenGitLabTokenMissing(t *testing.T) {
	binary := buildBinary(t)
	cmd := exec.Command(binary, "--dry-run")
	// Ensure we don't pick up a developer's glab session.
	cmd.Env = append(withoutEnv(append(configEnv, "PATH")...), "PATH="+t.TempDir())

	out, err := cmd.CombinedOutput()
	requireExitCode(t, err, out, 3)
	if !strings.Contains(string(out), "gitlab.token is required") {
		t.Fatalf("expected token-required message; output=%s", string(out))
	}
}

func TestRoot_ExitCode3_WhenOutFormatCannotBeInferred(t *testing.T) {
	binary := buildBinary(t)
	cmd := exec.Command(binary, "--dry-run", "--out", "results.unknown")
	cmd.Env = append(withoutEnv(configEnv...),
		"GITLAB_TOKEN=glpat-test",
		"SENTRY_TOKEN=sntrys-test",
		"SENTRY_ORG_SLUG=acme",
	)

	out, err := cmd.CombinedOutput()
	requireExitCode(t, err, out, 3)
	if !strings.Contains(string(out), "cannot infer output format") {
		t.Fatalf("expected output format inference error; output=%s", string(out))
	}
}

func TestRoot_ExitCode3_WhenConfigFileMissing(t *testing.T) {
	binary := buildBinary(t)
	cmd := exec.Command(binary, "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	out, err := cmd.CombinedOutput()
	requireExitCode(t, err, out, 3)
	if !strings.Contains(string(out), "read config") {
		t.Fatalf("expected config read error; output=%s", string(out))
	}
}

func TestRoot_Help_DocumentsConfigurationAndExitCodes(t *testing.T) {
	binary := buildBinary(t)
	cmd := exec.Command(binary, "--help")

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("expected zero exit; err=%v; output=%s", err, string(out))
	}

	s := string(out)
	required := []string{
		"Configuration:",
		"Exit codes:",
		"--full-path",
		"--dry-run",
		"ratelimit",
	}
	for _, r := range required {
		if !strings.Contains(s, r) {
			t.Fatalf("expected --help to contain %q; output=%s", r, s)
		}
	}
}
