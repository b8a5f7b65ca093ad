package guard

import (
	"encoding/base64"
	"errors"
	"unicode"
	"unicode/utf8"
)

// minBase64Run: 이보다 짧은 Base64 시퀀스는 검사하지 않습니다.
const minBase64Run = 20

func isBase64Char(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '+' || c == '/' || c == '-' || c == '_'
}

// containsSuspiciousBase64: 입력 속 Base64 시퀀스 중 디코딩 결과가 읽을 수 있는 텍스트인 것이 있는지 확인합니다.
func containsSuspiciousBase64(input string) bool {
	n := len(input)
	i := 0
	for i < n {
		if !isBase64Char(input[i]) {
			i++
			continue
		}

		start := i
		for i < n && isBase64Char(input[i]) {
			i++
		}
		padding := 0
		for i < n && input[i] == '=' && padding < 2 {
			i++
			padding++
		}
		if i-start < minBase64Run {
			continue
		}

		decoded, err := decodeBase64Run(input[start:i])
		if err != nil {
			continue
		}
		if isReadableText(decoded) {
			return true
		}
	}
	return false
}

var errEmptyBase64 = errors.New("base64 decode: empty input")

// decodeBase64Run: URL-safe 문자를 표준 문자로 바꾸고 패딩을 보정한 뒤 디코딩합니다.
func decodeBase64Run(s string) ([]byte, error) {
	n := len(s)
	if n == 0 {
		return nil, errEmptyBase64
	}

	padNeeded := (4 - n%4) % 4
	buf := make([]byte, n, n+padNeeded)
	for i := 0; i < n; i++ {
		switch s[i] {
		case '-':
			buf[i] = '+'
		case '_':
			buf[i] = '/'
		default:
			buf[i] = s[i]
		}
	}
	for range padNeeded {
		buf = append(buf, '=')
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(buf)))
	written, err := base64.StdEncoding.Decode(decoded, buf)
	if err != nil {
		return nil, err
	}
	return decoded[:written], nil
}

// isReadableText: 유효한 UTF-8 이고 출력 가능 문자 비율이 90% 를 넘으면 true 입니다.
func isReadableText(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	printable := 0
	total := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		i += size
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return printable*100 > total*90
}
