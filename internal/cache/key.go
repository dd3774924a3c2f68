package cache

import (
	"strings"
)

const hexDigits = "0123456789abcdef"

// Key 计算缓存目录名 _<flat-name>@<version>@<name>。
//
// version 与 name 逐字节转义：大写字母写作 "!"+小写，[a-z0-9-._~'()] 以外的字节写作 %xx，
// name 开头的 "@" 保留，末尾的 "." 转义。flat-name 为转义后的 name 将 %2f 换成 "_"。
// 结果不含大写字母、路径分隔符及 Windows 非法字符，普通小写包名保持原样：
// Key("demo-cmd", "1.2.0") == "_demo-cmd@1.2.0@demo-cmd"。
func Key(name, version string) string {
	escName := escapeComponent(name, true)
	return "_" + flatten(escName) + "@" + escapeComponent(version, false) + "@" + escName
}

// ParseKey 为 Key 的逆运算；非本包生成的目录名返回 ok=false。
func ParseKey(key string) (name, version string, ok bool) {
	if !strings.HasPrefix(key, "_") {
		return "", "", false
	}
	body := key[1:]

	last := strings.LastIndexByte(body, '@')
	if last <= 0 {
		return "", "", false
	}
	sep := last
	// scoped 包的 name 以 "@" 开头，与分隔符相邻。
	if body[last-1] == '@' {
		sep = last - 1
	}
	escName := body[sep+1:]
	rest := body[:sep]

	vsep := strings.LastIndexByte(rest, '@')
	if vsep <= 0 {
		return "", "", false
	}
	escVersion := rest[vsep+1:]
	flat := rest[:vsep]

	name, ok = unescapeComponent(escName)
	if !ok || name == "" {
		return "", "", false
	}
	version, ok = unescapeComponent(escVersion)
	if !ok || version == "" {
		return "", "", false
	}
	if flat != flatten(escName) || Key(name, version) != key {
		return "", "", false
	}
	return name, version, true
}

func flatten(escaped string) string {
	return strings.ReplaceAll(escaped, "%2f", "_")
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '\'', '(', ')':
		return true
	}
	return false
}

func escapeComponent(s string, keepLeadingAt bool) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte('!')
			b.WriteByte(c + ('a' - 'A'))
		case c == '@' && i == 0 && keepLeadingAt:
			b.WriteByte(c)
		case c == '.' && i == len(s)-1:
			writeHex(&b, c)
		case isSafeByte(c):
			b.WriteByte(c)
		default:
			writeHex(&b, c)
		}
	}
	return b.String()
}

func writeHex(b *strings.Builder, c byte) {
	b.WriteByte('%')
	b.WriteByte(hexDigits[c>>4])
	b.WriteByte(hexDigits[c&0x0f])
}

func unescapeComponent(s string) (string, bool) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '!':
			if i+1 >= len(s) || s[i+1] < 'a' || s[i+1] > 'z' {
				return "", false
			}
			out = append(out, s[i+1]-('a'-'A'))
			i++
		case '%':
			if i+2 >= len(s) {
				return "", false
			}
			hi, ok1 := fromHex(s[i+1])
			lo, ok2 := fromHex(s[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			out = append(out, c)
		}
	}
	return string(out), true
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
