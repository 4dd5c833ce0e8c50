package service

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NameKey 姓名比对键：去首尾空白、合并连续空白、NFC 归一化、Unicode 大小写折叠
// "  élodie   MARTIN" 与 "Élodie Martin" 得到同一个键
func NameKey(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	// Caser 有状态，不能跨 goroutine 共享
	return cases.Fold().String(norm.NFC.String(strings.Join(fields, " ")))
}

// cleanName 规范化展示用姓名（只合并空白，不改大小写）
func cleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
