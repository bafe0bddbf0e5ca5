package util

import (
	"strconv"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)
