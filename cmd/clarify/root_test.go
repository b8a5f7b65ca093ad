package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
)

type recordingRunner struct {
	req    clarify.Request
	result *clarify.Result
	err    error
}

func (r *recordingRunner) Run(_ context.Context, req clarify.Request) (*clarify.Result, error) {
	r.req = req
	return r.result, r.err
}

func rulesConfig() *config.Config {
	return &config.Config{Clarify: config.ClarifyConfig{Mode: config.ModeRules, MaxQuestions: 3, DefaultLanguage: "en"}}
}

func execute(t *testing.T, factory runnerFactory, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(factory, rulesConfig)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeFactory(r *recordingRunner, gotMode *string) runnerFactory {
	return func(cfg *config.Config, _ *slog.Logger) (runner, func(), error) {
		if gotMode != nil {
			*gotMode = cfg.Clarify.Mode
		}
		return r, func() {}, nil
	}
}

func TestRulesEndToEnd(t *testing.T) {
	out, err := execute(t, defaultFactory, "", "Build", "me", "a", "login", "page")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var result clarify.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if !result.NeedsClarification || !result.HasAspect("platform") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestContextFlagsAndStdin(t *testing.T) {
	r := &recordingRunner{result: &clarify.Result{Questions: []clarify.Question{}, Source: clarify.SourceRules, Language: "en"}}
	var mode string
	_, err := execute(t, fakeFactory(r, &mode), "  Add a button \n",
		"--stdin", "--mode", "hybrid",
		"-c", "project=checkout", "-c", "answers.placement=header")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if r.req.UserInput != "Add a button" {
		t.Fatalf("unexpected input %q", r.req.UserInput)
	}
	if mode != "hybrid" {
		t.Fatalf("mode override not applied: %q", mode)
	}
	want := &clarify.WorkflowContext{Project: "checkout", Answers: map[string]string{"placement": "header"}}
	if diff := cmp.Diff(want, r.req.Context); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestYAMLOutput(t *testing.T) {
	r := &recordingRunner{result: &clarify.Result{
		NeedsClarification: true,
		Questions:          []clarify.Question{{Aspect: "goal", Text: "What should it do?", Priority: clarify.PriorityHigh}},
		Source:             clarify.SourceRules,
		Language:           "en",
	}}
	out, err := execute(t, fakeFactory(r, nil), "", "plan", "a", "trip", "-o", "yaml")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"needs_clarification: true", "aspect: goal", "source: rules"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		err  error
		want string
	}{
		{name: "bad context", args: []string{"x", "-c", "novalue"}, want: "must be key=value"},
		{name: "stdin with args", args: []string{"x", "--stdin"}, want: "mutually exclusive"},
		{name: "bad format", args: []string{"x", "-o", "table"}, want: "must be one of"},
		{name: "agent error", args: []string{"x"}, err: clarify.ErrNotImplemented, want: clarify.ErrNotImplemented.Error()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &recordingRunner{err: tc.err}
			_, err := execute(t, fakeFactory(r, nil), "", tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("expected wrapped %v, got %v", tc.err, err)
			}
		})
	}
}

func TestParseContextPairs(t *testing.T) {
	got, err := parseContextPairs([]string{"platform=web", "answers.auth=sso", "answers.audience=admins", "location=a=b"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]any{
		"platform": "web",
		"location": "a=b",
		"answers":  map[string]any{"auth": "sso", "audience": "admins"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pairs mismatch (-want +got):\n%s", diff)
	}
}
