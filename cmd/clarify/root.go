package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/config"
	"github.com/park285/clarification-agent-go/internal/di"
	"github.com/park285/clarification-agent-go/internal/logging"
)

type outputFormat string

const (
	outputFormatJSON outputFormat = "json"
	outputFormatYAML outputFormat = "yaml"
)

func (f *outputFormat) String() string {
	if f == nil || *f == "" {
		return string(outputFormatJSON)
	}
	return string(*f)
}

func (f *outputFormat) Set(v string) error {
	switch v {
	case "json", "yaml":
		*f = outputFormat(v)
		return nil
	default:
		return errors.New(`must be one of "json" or "yaml"`)
	}
}

func (f *outputFormat) Type() string {
	return "format"
}

// runner 는 CLI 가 호출하는 에이전트 표면이다.
type runner interface {
	Run(ctx context.Context, req clarify.Request) (*clarify.Result, error)
}

// runnerFactory 는 설정으로 에이전트를 만든다. cleanup 은 항상 non-nil 이다.
type runnerFactory func(cfg *config.Config, logger *slog.Logger) (runner, func(), error)

type options struct {
	Context  []string
	Stdin    bool
	Mode     string
	LogLevel string
	Format   outputFormat
}

func defaultFactory(cfg *config.Config, logger *slog.Logger) (runner, func(), error) {
	core, cleanup, err := di.InitializeCore(cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	return core.Agent, cleanup, nil
}

func newRootCommand(factory runnerFactory, loadConfig func() *config.Config) *cobra.Command {
	opts := options{Format: outputFormatJSON, LogLevel: "warn"}

	cmd := &cobra.Command{
		Use:   "clarify [request...]",
		Short: "Decide whether a request needs clarifying questions",
		Example: `  clarify "Build me a login page"
  clarify "Add a button" --context project=checkout --context answers.placement=header
  echo "Plan a trip" | clarify --stdin --mode rules -o yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args, opts.Stdin)
			if err != nil {
				return err
			}
			raw, err := parseContextPairs(opts.Context)
			if err != nil {
				return err
			}
			wc, _, err := clarify.DecodeContext(raw)
			if err != nil {
				return fmt.Errorf("invalid context: %w", err)
			}

			cfg := *loadConfig()
			if opts.Mode != "" {
				cfg.Clarify.Mode = opts.Mode
			}
			logger := logging.NewCLILogger(opts.LogLevel)

			agent, cleanup, err := factory(&cfg, logger)
			defer cleanup()
			if err != nil {
				return err
			}

			result, err := agent.Run(cmd.Context(), clarify.Request{UserInput: input, Context: wc})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), result, opts.Format)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Context, "context", "c", nil, "context entry as key=value (answers.<aspect>=value for prior answers)")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read the request from standard input")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "analyzer mode override (rules, llm, hybrid, disabled)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level written to stderr")
	cmd.Flags().VarP(&opts.Format, "output", "o", "output format (json, yaml)")
	return cmd
}

func readInput(stdin io.Reader, args []string, fromStdin bool) (string, error) {
	if fromStdin {
		if len(args) > 0 {
			return "", errors.New("request text and --stdin are mutually exclusive")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// parseContextPairs 는 key=value 목록을 컨텍스트 맵으로 바꾼다. answers.X 는 answers 하위 맵에 들어간다.
func parseContextPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("context entry %q must be key=value", pair)
		}
		if aspect, found := strings.CutPrefix(key, "answers."); found {
			answers, _ := raw["answers"].(map[string]any)
			if answers == nil {
				answers = make(map[string]any)
				raw["answers"] = answers
			}
			answers[aspect] = value
			continue
		}
		raw[key] = value
	}
	return raw, nil
}

func render(w io.Writer, result *clarify.Result, format outputFormat) error {
	switch format {
	case outputFormatYAML:
		// yaml 태그가 없으므로 JSON 필드 이름을 유지하려고 한 번 거친다.
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return encoder.Close()
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}
