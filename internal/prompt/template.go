package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var errUnbalanced = errors.New("invalid template: unbalanced braces")

// walkTemplate: 템플릿을 리터럴과 {key} 자리표시자로 나눠 순회합니다.
// {{ 와 }} 는 리터럴 중괄호로 취급합니다.
func walkTemplate(template string, literal func(string), placeholder func(string) error) error {
	start := 0
	flush := func(end int) {
		if end > start {
			literal(template[start:end])
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '{' && c != '}' {
			continue
		}
		flush(i)
		if i+1 < len(template) && template[i+1] == c {
			literal(string(c))
			i++
			start = i + 1
			continue
		}
		if c == '}' {
			return errUnbalanced
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			return errUnbalanced
		}
		if err := placeholder(template[i+1 : i+1+end]); err != nil {
			return err
		}
		i += end + 1
		start = i + 1
	}
	flush(len(template))
	return nil
}

// FormatTemplate: {key} 자리표시자를 값으로 치환합니다. 값이 없으면 오류입니다.
func FormatTemplate(template string, values map[string]string) (string, error) {
	var builder strings.Builder
	builder.Grow(len(template))

	err := walkTemplate(template, func(s string) {
		builder.WriteString(s)
	}, func(key string) error {
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("missing template value for %q", key)
		}
		builder.WriteString(value)
		return nil
	})
	if err != nil {
		return "", err
	}
	return builder.String(), nil
}

// ValidateSystemStatic: 시스템 프롬프트에 자리표시자가 없는지 검사합니다.
func ValidateSystemStatic(name string, system string) error {
	err := walkTemplate(system, func(string) {}, func(key string) error {
		return fmt.Errorf("%s: system prompt must not contain template variables %q", name, key)
	})
	if errors.Is(err, errUnbalanced) {
		return fmt.Errorf("%s: invalid system prompt template syntax", name)
	}
	return err
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// EscapeXML: 사용자 입력을 XML 태그 안에 넣을 수 있게 이스케이프합니다.
func EscapeXML(value string) string {
	return xmlEscaper.Replace(value)
}
