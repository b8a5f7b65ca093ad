// Package textnorm 은 사용자 입력 문자열 정규화 유틸리티를 제공한다.
// 입력 가드와 명확화 규칙 매칭이 같은 정규화 결과를 보도록 공유한다.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
	"github.com/mtibben/confusables"
	"github.com/ymw0407/jamo/pkg/jamo"
	"golang.org/x/text/unicode/norm"
)

// jamoTable: 한글 자모 범위를 통합한 테이블입니다.
var jamoTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11FF, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318F, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xA960, Hi: 0xA97F, Stride: 1}, // Hangul Jamo Extended-A
		{Lo: 0xD7B0, Hi: 0xD7FF, Stride: 1}, // Hangul Jamo Extended-B
	},
}

// hangulTable: 완성형 한글 범위입니다.
var hangulTable = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1},
	},
}

// IsASCIIOnly: 문자열이 ASCII 만 포함하는지 확인합니다.
func IsASCIIOnly(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isHangul(r rune) bool {
	return unicode.Is(hangulTable, r) || unicode.Is(jamoTable, r)
}

// Normalize: 한글은 보존하고 나머지 문자에 homoglyph skeleton 과 NFKC 를 적용합니다.
// ASCII 입력은 제어 문자 제거만 수행합니다.
func Normalize(text string) string {
	if IsASCIIOnly(text) {
		return StripControl(text)
	}
	nfc := norm.NFC.String(text)
	return StripControl(skeletonExcept(nfc, isHangul))
}

// Fold: 규칙 매칭과 캐시 키에 쓰는 비교용 형태로 변환합니다.
// 자모 조합, homoglyph 정규화, 이모지 제거, 소문자화, 공백 압축 순서로 처리합니다.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	if !IsASCIIOnly(text) {
		text = ComposeJamo(norm.NFC.String(text))
		text = StripEmoji(text)
		text = skeletonExcept(text, func(r rune) bool {
			return r <= unicode.MaxASCII || isHangul(r)
		})
	}
	text = StripControl(text)
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// skeletonExcept: keep 이 참인 문자는 그대로 두고 나머지 구간만 skeleton 변환합니다.
func skeletonExcept(text string, keep func(rune) bool) string {
	var result strings.Builder
	var pending strings.Builder
	result.Grow(len(text))

	flush := func() {
		if pending.Len() == 0 {
			return
		}
		skeleton := confusables.Skeleton(pending.String())
		result.WriteString(norm.NFKC.String(skeleton))
		pending.Reset()
	}

	for _, r := range text {
		if keep(r) {
			flush()
			result.WriteRune(r)
			continue
		}
		pending.WriteRune(r)
	}
	flush()

	return result.String()
}

func isControl(r rune) bool {
	return unicode.Is(unicode.Cf, r) || (unicode.Is(unicode.Cc, r) && !unicode.IsSpace(r))
}

// StripControl: 포맷/제어 문자를 제거합니다. 공백류 제어 문자(\t, \n)는 유지합니다.
func StripControl(text string) string {
	if strings.IndexFunc(text, isControl) < 0 {
		return text
	}
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if isControl(r) {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// ContainsEmoji: 이모지 포함 여부를 반환합니다.
func ContainsEmoji(text string) bool {
	return gomoji.ContainsEmoji(text)
}

// StripEmoji: 이모지를 제거합니다.
func StripEmoji(text string) string {
	if !gomoji.ContainsEmoji(text) {
		return text
	}
	return gomoji.RemoveEmojis(text)
}

// IsJamoOnly: 입력이 한글 자모로만 구성되어 있는지 확인합니다.
// 공백, 숫자, 구두점은 허용하며 완성형 한글이 섞이면 false 입니다.
func IsJamoOnly(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	hasJamo := false
	for _, r := range trimmed {
		if unicode.Is(jamoTable, r) {
			hasJamo = true
			continue
		}
		if unicode.IsSpace(r) || unicode.IsDigit(r) || unicode.IsPunct(r) {
			continue
		}
		return false
	}
	return hasJamo
}

// ComposeJamo: 연속된 자모 시퀀스를 완성형으로 조합합니다.
// 예: "시스템 ㅍㅡㄹㅗㅁㅍㅡㅌㅡ" → "시스템 프롬프트". 조합 실패 시 원본을 유지합니다.
func ComposeJamo(text string) string {
	if IsASCIIOnly(text) {
		return text
	}

	var result strings.Builder
	var buffer strings.Builder
	result.Grow(len(text))

	flush := func() {
		if buffer.Len() == 0 {
			return
		}
		raw := buffer.String()
		composed, err := jamo.ComposeHangeul(raw)
		if err == nil && len(composed) > 0 {
			result.WriteString(composed[0])
		} else {
			result.WriteString(raw)
		}
		buffer.Reset()
	}

	for _, r := range text {
		if unicode.Is(jamoTable, r) {
			buffer.WriteRune(r)
			continue
		}
		flush()
		result.WriteRune(r)
	}
	flush()

	return result.String()
}

// Truncate: 최대 rune 수로 자르고 앞뒤 공백을 제거합니다.
func Truncate(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if maxRunes <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == maxRunes {
			return text[:i]
		}
		count++
	}
	return text
}
