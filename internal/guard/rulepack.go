package guard

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

//go:embed rulepacks/*.yml
var embeddedRulepacks embed.FS

const defaultPackThreshold = 0.7

type rawRulepack struct {
	Version   int       `yaml:"version"`
	Threshold float64   `yaml:"threshold"`
	Rules     []rawRule `yaml:"rules"`
}

type rawRule struct {
	ID      string   `yaml:"id"`
	Type    string   `yaml:"type"`
	Pattern string   `yaml:"pattern"`
	Phrases []string `yaml:"phrases"`
	Weight  float64  `yaml:"weight"`
}

type regexRule struct {
	ID      string
	Pattern *regexp.Regexp
	Weight  float64
}

type compiledPack struct {
	Name          string
	Threshold     float64
	RegexRules    []regexRule
	PhraseMatcher *ahocorasick.Matcher
	Phrases       []string
	PhraseWeights map[string]float64
}

// loadRulepacks: dir 에 rulepack 이 있으면 그것을, 없으면 내장 rulepack 을 사용합니다.
func loadRulepacks(dir string, logger *slog.Logger) []compiledPack {
	if dir != "" {
		if paths := findRulepackFiles(dir); len(paths) > 0 {
			return compileFiles(os.DirFS(dir), relativeNames(dir, paths), logger)
		}
		if logger != nil {
			logger.Warn("rulepacks_not_found", "dir", dir, "fallback", "embedded")
		}
	}

	names, err := fs.Glob(embeddedRulepacks, "rulepacks/*.yml")
	if err != nil {
		return nil
	}
	return compileFiles(embeddedRulepacks, names, logger)
}

func relativeNames(dir string, paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			continue
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names
}

func compileFiles(fsys fs.FS, names []string, logger *slog.Logger) []compiledPack {
	packs := make([]compiledPack, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			if logger != nil {
				logger.Warn("rulepack_read_failed", "path", name, "err", err)
			}
			continue
		}

		var raw rawRulepack
		if err := yaml.Unmarshal(data, &raw); err != nil {
			if logger != nil {
				logger.Warn("rulepack_parse_failed", "path", name, "err", err)
			}
			continue
		}

		pack, err := compileRulepack(raw, logger)
		if err != nil {
			if logger != nil {
				logger.Warn("rulepack_compile_failed", "path", name, "err", err)
			}
			continue
		}
		pack.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
		packs = append(packs, pack)
	}
	return packs
}

func findRulepackFiles(dir string) []string {
	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	return files
}

func compileRulepack(raw rawRulepack, logger *slog.Logger) (compiledPack, error) {
	if raw.Threshold == 0 {
		raw.Threshold = defaultPackThreshold
	}

	var regexes []regexRule
	phrases := make([]string, 0)
	phraseWeights := make(map[string]float64)

	for _, rule := range raw.Rules {
		switch strings.ToLower(strings.TrimSpace(rule.Type)) {
		case "regex":
			if rule.ID == "" || rule.Pattern == "" {
				return compiledPack{}, fmt.Errorf("invalid regex rule: id=%q", rule.ID)
			}
			pattern, err := regexp.Compile("(?i)" + rule.Pattern)
			if err != nil {
				if logger != nil {
					logger.Warn("rulepack_regex_invalid", "rule_id", rule.ID, "err", err)
				}
				continue
			}
			regexes = append(regexes, regexRule{ID: rule.ID, Pattern: pattern, Weight: rule.Weight})
		case "phrases":
			if rule.ID == "" || len(rule.Phrases) == 0 {
				return compiledPack{}, fmt.Errorf("invalid phrases rule: id=%q", rule.ID)
			}
			for _, phrase := range rule.Phrases {
				value := strings.ToLower(strings.TrimSpace(phrase))
				if value == "" {
					continue
				}
				if _, dup := phraseWeights[value]; !dup {
					phrases = append(phrases, value)
				}
				phraseWeights[value] = rule.Weight
			}
		default:
			return compiledPack{}, fmt.Errorf("unknown rule type: %s", rule.Type)
		}
	}

	var matcher *ahocorasick.Matcher
	if len(phrases) > 0 {
		matcher = ahocorasick.NewStringMatcher(phrases)
	}

	return compiledPack{
		Threshold:     raw.Threshold,
		RegexRules:    regexes,
		PhraseMatcher: matcher,
		Phrases:       phrases,
		PhraseWeights: phraseWeights,
	}, nil
}
