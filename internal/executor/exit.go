package executor

import "os"

// osExit 可在测试中替换。
var osExit = os.Exit

// Exit 以 code 结束当前进程，是整个程序中唯一的退出点。
func Exit(code int) {
	osExit(code)
}
