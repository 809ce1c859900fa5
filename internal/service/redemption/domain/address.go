package domain

import (
	"encoding/hex"
	"strings"
)

const addressHexLen = 64

// NormalizeAddress 把用户地址规范化为小写 0x + 64 位十六进制（不足左侧补零）。
func NormalizeAddress(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "0x") {
		return "", ErrInvalidAddress
	}
	body := s[2:]
	if body == "" || len(body) > addressHexLen {
		return "", ErrInvalidAddress
	}
	padded := strings.Repeat("0", addressHexLen-len(body)) + body
	if _, err := hex.DecodeString(padded); err != nil {
		return "", ErrInvalidAddress
	}
	return "0x" + padded, nil
}

// NormalizeCode 去掉空白和连字符并转成大写；创建和查询都必须走这里。
func NormalizeCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
