package executor

import "strings"

// cmdMeta 为 cmd.exe 会解释的字符，全部用 ^ 转义后 cmd 原样转交给子进程。
const cmdMeta = `()%!^"<>&|`

// shellCommandLine 生成 Windows 上 cmd /c 的完整命令行。
// 每个参数先按 MSVCRT 规则加引号，再转义整行的 cmd 元字符，
// 这样 cmd 不会因为 \" 翻转引号状态而解释参数中的 & | < > 或 %VAR%。
func shellCommandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quoteArg(a)
	}
	return "cmd /c " + escapeCmdMeta(strings.Join(quoted, " "))
}

// quoteArg 按 CommandLineToArgvW 的解析规则为单个参数加引号。
func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
			b.WriteByte(c)
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
		}
		slashes = 0
		b.WriteByte(c)
	}
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}

func escapeCmdMeta(line string) string {
	var b strings.Builder
	b.Grow(len(line) * 2)
	for _, r := range line {
		if strings.ContainsRune(cmdMeta, r) {
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	return b.String()
}
