package utils

import "strconv"

// Pointer pointer
func Pointer[Value any](v Value) *Value {
	return &v
}

// FormatID format uint64 id as decimal string
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
