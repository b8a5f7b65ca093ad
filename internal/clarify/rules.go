package clarify

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/park285/clarification-agent-go/internal/textnorm"
)

// RuleAnalyzer 는 YAML 규칙 팩으로 누락된 정보를 판별하는 결정적 분석기다.
type RuleAnalyzer struct {
	packs           map[string]*rulepack
	defaultLanguage string
}

// NewRuleAnalyzer: 내장 규칙 팩(en, ko)과 선택적 디렉터리 팩으로 분석기를 생성합니다.
func NewRuleAnalyzer(dir string, defaultLanguage string, logger *slog.Logger) (*RuleAnalyzer, error) {
	packs, err := loadRulepacks(dir, logger)
	if err != nil {
		return nil, err
	}
	if len(packs) == 0 {
		return nil, errors.New("no clarify rulepacks loaded")
	}

	lang := normalizeLanguage(defaultLanguage)
	if _, ok := packs[lang]; !ok {
		lang = textnorm.LangEnglish
	}
	if logger != nil {
		logger.Info("clarify_rules_ready", "languages", languages(packs), "default_language", lang)
	}
	return &RuleAnalyzer{packs: packs, defaultLanguage: lang}, nil
}

// Name: 분석기 이름입니다.
func (a *RuleAnalyzer) Name() string {
	return string(SourceRules)
}

// Languages: 사용 가능한 규칙 팩 언어 목록입니다.
func (a *RuleAnalyzer) Languages() []string {
	return languages(a.packs)
}

// Analyze: 규칙 팩으로 질문을 만듭니다. 상한과 정렬은 에이전트가 적용합니다.
func (a *RuleAnalyzer) Analyze(ctx context.Context, req Request, _ int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pack := a.selectPack(req)
	text := prepareText(req.UserInput)
	result := &Result{Source: SourceRules, Language: pack.language, Questions: []Question{}}

	if text.folded == "" {
		result.Questions = append(result.Questions, pack.empty)
		return result, nil
	}

	for _, aspect := range pack.aspects {
		if q, ok := aspect.evaluate(text, req.Context); ok {
			result.Questions = append(result.Questions, q)
		}
	}
	if q, ok := pack.vagueQuestion(text, req.Context); ok {
		result.Questions = append(result.Questions, q)
	}
	if len(result.Questions) == 0 && textnorm.CountWords(text.folded) < pack.minWords && !req.Context.Answered(pack.short.Aspect) {
		result.Questions = append(result.Questions, pack.short)
	}
	return result, nil
}

// selectPack: 컨텍스트 언어, 한글 감지, 기본 언어 순으로 팩을 고릅니다.
func (a *RuleAnalyzer) selectPack(req Request) *rulepack {
	if req.Context != nil {
		if pack, ok := a.packs[normalizeLanguage(req.Context.Language)]; ok {
			return pack
		}
	}
	if pack, ok := a.packs[textnorm.DetectLanguage(req.UserInput, a.defaultLanguage)]; ok {
		return pack
	}
	if pack, ok := a.packs[a.defaultLanguage]; ok {
		return pack
	}
	return a.packs[languages(a.packs)[0]]
}

func languages(packs map[string]*rulepack) []string {
	langs := make([]string, 0, len(packs))
	for lang := range packs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
