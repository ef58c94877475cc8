package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
)

const testSecret = "cli-test-secret-0123456789"

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  secret: "+testSecret+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "token", "user-42", "--name", "Ann"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	authn, _ := auth.NewAuthenticator(testSecret, "live-quiz", time.Hour)
	id, err := authn.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "user-42" || id.Name != "Ann" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestNewDocStoreDrivers(t *testing.T) {
	cfg := config.Config{}
	cfg.Store.Driver = "memory"
	if _, err := newDocStore(cfg, nil); err != nil {
		t.Fatalf("memory store: %v", err)
	}
	cfg.Store.Driver = "redis"
	if _, err := newDocStore(cfg, nil); err == nil {
		t.Fatalf("expected redis driver without client to fail")
	}
	cfg.Store.Driver = "etcd"
	if _, err := newDocStore(cfg, nil); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}

func TestNewQuestionBankFallsBackToSamples(t *testing.T) {
	bank, err := newQuestionBank(config.Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	if _, ok := bank.(*memory.QuestionBankCache); !ok {
		t.Fatalf("expected in-memory cache, got %T", bank)
	}
	set, err := bank.LoadQuestionSet(context.Background(), "sample")
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if len(set.Questions) == 0 {
		t.Fatalf("expected sample questions")
	}
}

func TestQuizOptionsFromConfig(t *testing.T) {
	off := false
	cfg := config.Config{}
	cfg.Quiz.AnswerGrace = "500ms"
	cfg.Quiz.EarlyAdvance = &off
	cfg.Quiz.HostTimeout = "30s"

	opts := quizOptions(cfg)
	if opts.AnswerGrace != 500*time.Millisecond || opts.EarlyAdvance || opts.HostTimeout != 30*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}
