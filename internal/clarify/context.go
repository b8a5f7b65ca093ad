package clarify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// contextAliases: 호출자가 흔히 쓰는 별칭 키입니다.
var contextAliases = map[string]string{
	"auth":          "auth_method",
	"authmethod":    "auth_method",
	"lang":          "language",
	"locale":        "language",
	"maxquestions":  "max_questions",
	"target":        "platform",
	"placement":     "location",
	"answered":      "answers",
	"prior_answers": "answers",
}

// DecodeContext: 열린 맵을 WorkflowContext 로 변환합니다.
// 인식하지 못한 키는 정렬된 목록으로 함께 반환합니다. nil/빈 맵은 nil 컨텍스트입니다.
func DecodeContext(raw map[string]any) (*WorkflowContext, []string, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	normalized := make(map[string]any, len(raw))
	for key, value := range raw {
		name := strings.ToLower(strings.TrimSpace(key))
		name = strings.ReplaceAll(name, "-", "_")
		if alias, ok := contextAliases[name]; ok {
			name = alias
		}
		normalized[name] = value
	}

	var decoded WorkflowContext
	var meta mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decoded,
		Metadata:         &meta,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create context decoder: %w", err)
	}
	if err := decoder.Decode(normalized); err != nil {
		return nil, nil, fmt.Errorf("decode context: %w", err)
	}
	if decoded.MaxQuestions < 0 {
		return nil, nil, fmt.Errorf("decode context: max_questions must not be negative")
	}

	unused := append([]string(nil), meta.Unused...)
	sort.Strings(unused)
	return &decoded, unused, nil
}
