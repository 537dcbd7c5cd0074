// Package utils 通用小工具，不依赖 internal
package utils

import "unicode/utf8"

// CoalesceString 返回第一个非空字符串
func CoalesceString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// DefaultInt 若 v <= 0 则返回 defaultVal
func DefaultInt(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// Truncate 按字符截断，超长时追加 "..."；用于日志里的描述预览
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
