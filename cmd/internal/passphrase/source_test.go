package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestSource(env map[string]string, terminal bool, secret string) (*Source, *int) {
	reads := 0
	s := NewSource("CLAIMLINK_TEST_PASS", "relayer")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readSecret = func() ([]byte, error) {
		reads++
		if secret == "" {
			return nil, errors.New("closed")
		}
		return []byte(secret), nil
	}
	s.prompt = &bytes.Buffer{}
	return s, &reads
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s, reads := newTestSource(map[string]string{"CLAIMLINK_TEST_PASS": "hunter2"}, true, "typed")
	got, err := s.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if *reads != 0 {
		t.Fatalf("prompted despite environment value")
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s, _ := newTestSource(map[string]string{"CLAIMLINK_TEST_PASS": "  "}, true, "typed")
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank value")
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	s, reads := newTestSource(nil, true, "typed")
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "typed" {
			t.Fatalf("Get() = %q, %v", got, err)
		}
	}
	if *reads != 1 {
		t.Fatalf("reads = %d, want 1", *reads)
	}
	if out := s.prompt.(*bytes.Buffer).String(); !strings.Contains(out, "relayer passphrase") {
		t.Fatalf("prompt = %q", out)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	s, _ := newTestSource(nil, false, "")
	_, err := s.Get()
	if err == nil || !strings.Contains(err.Error(), "CLAIMLINK_TEST_PASS") {
		t.Fatalf("expected hint naming the variable, got %v", err)
	}
}
