package textnorm

import (
	"unicode"
)

// 언어 코드
const (
	LangEnglish = "en"
	LangKorean  = "ko"
)

// koreanRatioThreshold: 글자 중 한글 비율이 이 값 이상이면 한국어로 판단합니다.
const koreanRatioThreshold = 0.3

// HangulRatio: 문자(letter) 중 한글이 차지하는 비율을 반환합니다.
func HangulRatio(text string) float64 {
	letters := 0
	hangul := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if isHangul(r) {
			hangul++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hangul) / float64(letters)
}

// DetectLanguage: 한글 비율로 ko/en 을 추정합니다. 판단 불가 시 fallback 을 반환합니다.
func DetectLanguage(text string, fallback string) string {
	letters := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters = true
			break
		}
	}
	if !letters {
		return fallback
	}
	if HangulRatio(text) >= koreanRatioThreshold {
		return LangKorean
	}
	return LangEnglish
}

// CountWords: 문자나 숫자로 이루어진 토큰 수를 셉니다.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !inWord {
				count++
				inWord = true
			}
			continue
		}
		if r == '\'' || r == '-' {
			continue
		}
		inWord = false
	}
	return count
}
