package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/event"
	"github.com/shortontech/botgate/internal/render"
)

// cleanEnv resets the variables the commands read to their defaults.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BOT_PATTERNS", "BOT_PATTERNS_FILE", "REDIRECT_URL", "BOT_CONTENT_ORIGIN",
		"CONSENT_STORE", "MAX_BODY_BYTES", "OUTPUTS", "LOG_LEVEL", "LOG_PATH",
		"METRICS_ENABLED", "METRICS_INLINE",
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), append([]string{"--env-file", ""}, args...))
	return stdout.String(), err
}

func decodeResult(t *testing.T, out string) result {
	t.Helper()
	var res result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}
	return res
}

func TestApp_Version(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "botgate version dev") {
		t.Errorf("version output missing 'botgate version', got: %s", out)
	}
}

func TestApp_Help(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, want := range []string{"classifies each visitor", "serve", "classify", "probe", "selftest"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q, got: %s", want, out)
		}
	}
}

func TestApp_UnknownCommand(t *testing.T) {
	if _, err := run(t, "nope"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestApp_Classify(t *testing.T) {
	cleanEnv(t)

	tests := []struct {
		name       string
		args       []string
		wantBot    bool
		wantRule   string
		wantBranch render.Branch
	}{
		{"crawler", []string{"--ua", googlebotUA}, true, classify.RuleBotPattern, render.BranchBot},
		{"plain chrome", []string{"--ua", chromeUA, "--plugins", "3"}, false, classify.RuleDefault, render.BranchConsent},
		{"chrome without plugins", []string{"--ua", chromeUA}, false, classify.RulePluginOverride, render.BranchConsent},
		{"phantom", []string{"--ua", chromeUA, "--phantom"}, true, classify.RuleHeadlessMarker, render.BranchBot},
		{"webdriver firefox", []string{"--ua", firefoxUA, "--webdriver", "--globals", "firefox"}, true, classify.RuleWebdriverClaim, render.BranchBot},
		{"webdriver chrome", []string{"--ua", chromeUA, "--webdriver", "--plugins", "2"}, false, classify.RuleDefault, render.BranchConsent},
		{"no globals no dom", []string{"--ua", "Custom/1.0", "--globals", "none", "--no-dom"}, true, classify.RuleMissingBrowserAPIs, render.BranchBot},
		{"no storage", []string{"--ua", chromeUA, "--no-storage", "--plugins", "1"}, true, classify.RuleMissingStorage, render.BranchBot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"classify"}, tt.args...)...)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			res := decodeResult(t, out)
			if res.Decision.Bot != tt.wantBot || res.Decision.Rule != tt.wantRule {
				t.Errorf("decision = %+v, want bot=%t rule=%s", res.Decision, tt.wantBot, tt.wantRule)
			}
			if res.Branch != tt.wantBranch {
				t.Errorf("branch = %q, want %q", res.Branch, tt.wantBranch)
			}
			if res.Report != nil {
				t.Error("classify should not print a probe report")
			}
		})
	}

	t.Run("rejects unknown global", func(t *testing.T) {
		if _, err := run(t, "classify", "--ua", chromeUA, "--globals", "netscape"); err == nil {
			t.Error("expected error for unknown global")
		}
	})

	t.Run("patterns file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "patterns.yaml")
		if err := os.WriteFile(path, []byte("bot_patterns:\n  - acmefetch\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		out, err := run(t, "classify", "--ua", "AcmeFetch/2.0", "--plugins", "1", "--patterns-file", path)
		if err != nil {
			t.Fatalf("classify failed: %v", err)
		}
		res := decodeResult(t, out)
		if !res.Decision.Bot || res.Decision.Pattern != "acmefetch" {
			t.Errorf("decision = %+v, want acmefetch match", res.Decision)
		}

		// googlebot no longer matches once the file replaces the defaults
		out, err = run(t, "classify", "--ua", googlebotUA, "--plugins", "1", "--patterns-file", path)
		if err != nil {
			t.Fatalf("classify failed: %v", err)
		}
		if decodeResult(t, out).Decision.Bot {
			t.Error("default patterns should be replaced by the file")
		}
	})
}

func TestApp_EnvFile(t *testing.T) {
	cleanEnv(t)

	t.Run("explicit missing file is an error", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := New().WithOutput(&stdout, &stderr).ExecuteWithArgs(context.Background(),
			[]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "version"})
		if err == nil {
			t.Error("expected error for missing explicit env file")
		}
	})

	t.Run("loads variables", func(t *testing.T) {
		os.Unsetenv("BOT_PATTERNS")
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("BOT_PATTERNS=dotenvbot\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		var stdout, stderr bytes.Buffer
		err := New().WithOutput(&stdout, &stderr).ExecuteWithArgs(context.Background(),
			[]string{"--env-file", path, "classify", "--ua", "DotEnvBot/1"})
		if err != nil {
			t.Fatalf("classify failed: %v", err)
		}
		if res := decodeResult(t, stdout.String()); res.Decision.Pattern != "dotenvbot" {
			t.Errorf("decision = %+v, want dotenvbot match", res.Decision)
		}
	})
}

func TestParseGlobals(t *testing.T) {
	g, err := parseGlobals([]string{"chrome", "opera", "none"})
	if err != nil {
		t.Fatal(err)
	}
	if g != (classify.BrowserGlobals{Chrome: true, Opera: true}) {
		t.Errorf("parseGlobals() = %+v", g)
	}
	if _, err := parseGlobals([]string{"lynx"}); err == nil {
		t.Error("expected error")
	}
}

func TestSelftestScenarios(t *testing.T) {
	scenarios := selftestScenarios()
	if len(scenarios) != 5 {
		t.Fatalf("expected 5 scenarios, got %d", len(scenarios))
	}

	var emitted []event.Event
	var buf bytes.Buffer
	failed := runSelftest(&buf, classify.New(classify.Config{}), scenarios, func(e event.Event) {
		emitted = append(emitted, e)
	}, 0)
	if failed != 0 {
		t.Errorf("%d scenarios failed:\n%s", failed, buf.String())
	}
	if len(emitted) != len(scenarios) {
		t.Fatalf("emitted %d events, want %d", len(emitted), len(scenarios))
	}
	for i, e := range emitted {
		if e.EventID == "" || e.TS == "" || e.Type != event.TypeClassification {
			t.Errorf("event %d missing required fields: %+v", i, e)
		}
		if e.Verdict.Bot != scenarios[i].WantBot {
			t.Errorf("event %d verdict = %+v", i, e.Verdict)
		}
	}
	if !strings.Contains(buf.String(), "webdriver without chrome or safari") {
		t.Errorf("table missing scenario row:\n%s", buf.String())
	}

	t.Run("counts mismatches", func(t *testing.T) {
		bad := []scenario{{"wrong", desktop(chromeUA), true, classify.RuleBotPattern}}
		var out bytes.Buffer
		if n := runSelftest(&out, classify.New(classify.Config{}), bad, func(event.Event) {}, 0); n != 1 {
			t.Errorf("failed = %d, want 1", n)
		}
		if !strings.Contains(out.String(), "FAIL") {
			t.Errorf("expected FAIL row:\n%s", out.String())
		}
	})
}

func TestApp_Selftest(t *testing.T) {
	cleanEnv(t)

	t.Run("passes with default patterns", func(t *testing.T) {
		out, err := run(t, "selftest")
		if err != nil {
			t.Fatalf("selftest failed: %v\n%s", err, out)
		}
		if got := strings.Count(out, " ok"); got != 5 {
			t.Errorf("expected 5 ok rows, got %d:\n%s", got, out)
		}
	})

	t.Run("fails when patterns miss the crawler", func(t *testing.T) {
		t.Setenv("BOT_PATTERNS", "nothingmatches")
		if _, err := run(t, "selftest"); err == nil {
			t.Error("expected selftest failure")
		}
	})

	t.Run("emits through the log sink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "journal.ndjson")
		t.Setenv("OUTPUTS", "log")
		t.Setenv("LOG_PATH", path)

		if _, err := run(t, "selftest", "--emit"); err != nil {
			t.Fatalf("selftest failed: %v", err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		lines := 0
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var e event.Event
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				t.Fatalf("line %d: %v", lines+1, err)
			}
			lines++
		}
		if lines != 5 {
			t.Errorf("journal has %d lines, want 5", lines)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Setenv("REDIRECT_URL", "/relative")
		if _, err := run(t, "selftest"); err == nil {
			t.Error("expected configuration error")
		}
	})
}

func TestServe(t *testing.T) {
	cleanEnv(t)
	t.Setenv("OUTPUTS", "log")
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "serve.ndjson"))
	t.Setenv("METRICS_INLINE", "true")
	t.Setenv("LOG_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := New().WithOutput(io.Discard, io.Discard)
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- app.serve(ctx, &serveOptions{addr: "127.0.0.1:0"}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/probe.js"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, "http://"+addr+"/", nil)
	req.Header.Set("User-Agent", googlebotUA)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "application/ld+json") {
		t.Error("crawler should receive structured data")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	cleanEnv(t)
	t.Setenv("CONSENT_STORE", "etcd")
	err := New().serve(context.Background(), &serveOptions{}, nil)
	if err == nil || !strings.Contains(err.Error(), "CONSENT_STORE") {
		t.Errorf("serve() = %v, want CONSENT_STORE error", err)
	}
}
