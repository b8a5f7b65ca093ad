package clarify

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/park285/clarification-agent-go/internal/prompt"
	"github.com/park285/clarification-agent-go/internal/textnorm"
)

//go:embed rulepacks/*.yml
var embeddedRulepacks embed.FS

// knownContextKeys: context_keys 에 쓸 수 있는 이름입니다.
var knownContextKeys = map[string]struct{}{
	"project":     {},
	"platform":    {},
	"audience":    {},
	"auth_method": {},
	"location":    {},
	"language":    {},
}

type rawQuestion struct {
	Aspect   string `yaml:"aspect"`
	Priority string `yaml:"priority"`
	Text     string `yaml:"text"`
}

type rawMatchers struct {
	Phrases  []string `yaml:"phrases"`
	Patterns []string `yaml:"patterns"`
}

type rawAspect struct {
	ID          string      `yaml:"id"`
	Priority    string      `yaml:"priority"`
	ContextKeys []string    `yaml:"context_keys"`
	Triggers    rawMatchers `yaml:"triggers"`
	SatisfiedBy rawMatchers `yaml:"satisfied_by"`
	Question    string      `yaml:"question"`
	Options     []string    `yaml:"options"`
}

type rawRulepack struct {
	Language         string      `yaml:"language"`
	MinWords         int         `yaml:"min_words"`
	EmptyQuestion    rawQuestion `yaml:"empty_question"`
	ShortQuestion    rawQuestion `yaml:"short_question"`
	VagueQuestion    rawQuestion `yaml:"vague_question"`
	VagueTerms       []string    `yaml:"vague_terms"`
	SpecificPatterns []string    `yaml:"specific_patterns"`
	Aspects          []rawAspect `yaml:"aspects"`
}

// matchText: 규칙 매칭에 쓰는 입력의 두 가지 형태입니다.
// folded 는 정규식용, padded 는 구두점을 공백으로 바꾸고 양끝에 공백을 붙인 phrase 매칭용입니다.
type matchText struct {
	folded string
	padded string
}

func prepareText(input string) matchText {
	folded := textnorm.Fold(input)
	if folded == "" {
		return matchText{}
	}
	return matchText{folded: folded, padded: " " + spaceOutPunct(folded) + " "}
}

func spaceOutPunct(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func isASCIIAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// preparePhrase: phrase 를 입력과 같은 방식으로 정규화합니다.
// 영숫자로 시작/끝나는 phrase 는 단어 경계를 위해 공백을 붙이고, '*' 로 끝나면 접두 매칭합니다.
func preparePhrase(phrase string) string {
	phrase = strings.TrimSpace(phrase)
	prefixMatch := strings.HasSuffix(phrase, "*")
	phrase = spaceOutPunct(textnorm.Fold(strings.TrimSuffix(phrase, "*")))
	if phrase == "" {
		return ""
	}
	if isASCIIAlnum(phrase[0]) {
		phrase = " " + phrase
	}
	if !prefixMatch && isASCIIAlnum(phrase[len(phrase)-1]) {
		phrase += " "
	}
	return phrase
}

// matcher: phrase(Aho-Corasick) 와 정규식 묶음입니다.
type matcher struct {
	ac       *ahocorasick.Matcher
	labels   []string
	patterns []*regexp.Regexp
}

func newMatcher(phrases []string, patterns []string) (*matcher, error) {
	m := &matcher{}
	prepared := make([]string, 0, len(phrases))
	seen := make(map[string]struct{}, len(phrases))
	for _, phrase := range phrases {
		key := preparePhrase(phrase)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		prepared = append(prepared, key)
		m.labels = append(m.labels, strings.TrimSuffix(strings.TrimSpace(phrase), "*"))
	}
	if len(prepared) > 0 {
		m.ac = ahocorasick.NewStringMatcher(prepared)
	}

	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pattern, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
		}
		m.patterns = append(m.patterns, pattern)
	}
	return m, nil
}

func (m *matcher) empty() bool {
	return m == nil || (m.ac == nil && len(m.patterns) == 0)
}

// firstMatch: 먼저 발견된 phrase 를, 없으면 첫 정규식 매칭 문자열을 반환합니다.
func (m *matcher) firstMatch(text matchText) (string, bool) {
	if m == nil || text.folded == "" {
		return "", false
	}
	if m.ac != nil {
		if hits := m.ac.MatchThreadSafe([]byte(text.padded)); len(hits) > 0 {
			return m.labels[hits[0]], true
		}
	}
	for _, pattern := range m.patterns {
		if found := pattern.FindString(text.folded); found != "" {
			return found, true
		}
	}
	return "", false
}

func (m *matcher) matches(text matchText) bool {
	_, ok := m.firstMatch(text)
	return ok
}

type aspectRule struct {
	id          string
	priority    Priority
	contextKeys []string
	triggers    *matcher
	satisfiedBy *matcher
	question    string
	options     []string
}

// evaluate: 측면이 적용되고 아직 충족되지 않았으면 질문을 만듭니다.
func (r aspectRule) evaluate(text matchText, wc *WorkflowContext) (Question, bool) {
	if !r.triggers.empty() && !r.triggers.matches(text) {
		return Question{}, false
	}
	if wc.Answered(r.id) {
		return Question{}, false
	}
	for _, key := range r.contextKeys {
		if wc.Value(key) != "" {
			return Question{}, false
		}
	}
	if r.satisfiedBy.matches(text) {
		return Question{}, false
	}
	return Question{
		Aspect:   r.id,
		Text:     r.question,
		Priority: r.priority,
		Options:  append([]string(nil), r.options...),
	}, true
}

type rulepack struct {
	language   string
	minWords   int
	empty      Question
	short      Question
	vague      Question
	vagueTerms *matcher
	specific   *matcher
	aspects    []aspectRule
}

// vagueQuestion: 측정 가능한 표현이 없는 모호한 용어가 있으면 구체화 질문을 만듭니다.
func (p *rulepack) vagueQuestion(text matchText, wc *WorkflowContext) (Question, bool) {
	if p.vagueTerms.empty() || wc.Answered(p.vague.Aspect) {
		return Question{}, false
	}
	term, ok := p.vagueTerms.firstMatch(text)
	if !ok || p.specific.matches(text) {
		return Question{}, false
	}
	rendered, err := prompt.FormatTemplate(p.vague.Text, map[string]string{"term": term})
	if err != nil {
		return Question{}, false
	}
	q := p.vague
	q.Text = rendered
	return q, true
}

func compileQuestion(raw rawQuestion, fallbackAspect string, field string) (Question, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return Question{}, fmt.Errorf("%s: text is required", field)
	}
	aspect := normalizeAspect(raw.Aspect)
	if strings.TrimSpace(raw.Aspect) == "" {
		aspect = fallbackAspect
	}
	return Question{Aspect: aspect, Text: text, Priority: ParsePriority(raw.Priority)}, nil
}

func compileRulepack(raw rawRulepack) (*rulepack, error) {
	language := normalizeLanguage(raw.Language)
	if language == "" {
		return nil, errors.New("rulepack language is required")
	}

	pack := &rulepack{language: language, minWords: raw.MinWords}
	var err error
	if pack.empty, err = compileQuestion(raw.EmptyQuestion, "goal", "empty_question"); err != nil {
		return nil, err
	}
	if pack.short, err = compileQuestion(raw.ShortQuestion, "goal", "short_question"); err != nil {
		return nil, err
	}

	if len(raw.VagueTerms) > 0 {
		if pack.vague, err = compileQuestion(raw.VagueQuestion, "specificity", "vague_question"); err != nil {
			return nil, err
		}
		if _, err := prompt.FormatTemplate(pack.vague.Text, map[string]string{"term": "x"}); err != nil {
			return nil, fmt.Errorf("vague_question: %w", err)
		}
		if pack.vagueTerms, err = newMatcher(raw.VagueTerms, nil); err != nil {
			return nil, err
		}
		if pack.specific, err = newMatcher(nil, raw.SpecificPatterns); err != nil {
			return nil, err
		}
	}

	ids := make(map[string]struct{}, len(raw.Aspects))
	for _, rawAspect := range raw.Aspects {
		rule, err := compileAspect(rawAspect)
		if err != nil {
			return nil, err
		}
		if _, dup := ids[rule.id]; dup {
			return nil, fmt.Errorf("duplicate aspect: %s", rule.id)
		}
		ids[rule.id] = struct{}{}
		pack.aspects = append(pack.aspects, rule)
	}
	return pack, nil
}

func compileAspect(raw rawAspect) (aspectRule, error) {
	id := normalizeAspect(raw.ID)
	if strings.TrimSpace(raw.ID) == "" {
		return aspectRule{}, errors.New("aspect id is required")
	}
	question := strings.TrimSpace(raw.Question)
	if question == "" {
		return aspectRule{}, fmt.Errorf("aspect %s: question is required", id)
	}
	for _, key := range raw.ContextKeys {
		if _, ok := knownContextKeys[key]; !ok {
			return aspectRule{}, fmt.Errorf("aspect %s: unknown context key %q", id, key)
		}
	}

	triggers, err := newMatcher(raw.Triggers.Phrases, raw.Triggers.Patterns)
	if err != nil {
		return aspectRule{}, fmt.Errorf("aspect %s triggers: %w", id, err)
	}
	satisfied, err := newMatcher(raw.SatisfiedBy.Phrases, raw.SatisfiedBy.Patterns)
	if err != nil {
		return aspectRule{}, fmt.Errorf("aspect %s satisfied_by: %w", id, err)
	}

	return aspectRule{
		id:          id,
		priority:    ParsePriority(raw.Priority),
		contextKeys: raw.ContextKeys,
		triggers:    triggers,
		satisfiedBy: satisfied,
		question:    question,
		options:     cleanOptions(raw.Options),
	}, nil
}

func parseRulepack(data []byte) (*rulepack, error) {
	var raw rawRulepack
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rulepack: %w", err)
	}
	return compileRulepack(raw)
}

// loadRulepacks: 내장 rulepack 을 읽고, dir 이 있으면 같은 언어의 팩을 덮어씁니다.
// 디렉터리 팩의 오류는 로그만 남기고 건너뜁니다.
func loadRulepacks(dir string, logger *slog.Logger) (map[string]*rulepack, error) {
	packs := make(map[string]*rulepack)

	names, err := fs.Glob(embeddedRulepacks, "rulepacks/*.yml")
	if err != nil {
		return nil, fmt.Errorf("glob embedded rulepacks: %w", err)
	}
	for _, name := range names {
		data, err := embeddedRulepacks.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read embedded rulepack %s: %w", name, err)
		}
		pack, err := parseRulepack(data)
		if err != nil {
			return nil, fmt.Errorf("embedded rulepack %s: %w", name, err)
		}
		packs[pack.language] = pack
	}

	if dir == "" {
		return packs, nil
	}

	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	if len(paths) == 0 && logger != nil {
		logger.Warn("clarify_rulepacks_not_found", "dir", dir)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if logger != nil {
				logger.Warn("clarify_rulepack_read_failed", "path", path, "err", err)
			}
			continue
		}
		pack, err := parseRulepack(data)
		if err != nil {
			if logger != nil {
				logger.Warn("clarify_rulepack_invalid", "path", path, "err", err)
			}
			continue
		}
		packs[pack.language] = pack
	}
	return packs, nil
}

// normalizeLanguage: "ko-KR", "Korean" 같은 값을 2글자 코드로 정리합니다.
func normalizeLanguage(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return ""
	case "korean", "한국어":
		return textnorm.LangKorean
	case "english":
		return textnorm.LangEnglish
	}
	if idx := strings.IndexAny(value, "-_"); idx > 0 {
		value = value[:idx]
	}
	return value
}
