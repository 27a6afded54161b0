package generic

import (
	"reflect"
)

// IsEmpty is empty
func IsEmpty(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)

	switch v.Kind() {
	case reflect.Array, reflect.Chan, reflect.Map, reflect.Slice:
		return v.Len() == 0

	case reflect.Ptr:
		if v.IsNil() {
			return true
		}
		ref := v.Elem().Interface()
		return IsEmpty(ref)

	default:
		zero := reflect.Zero(v.Type())
		return reflect.DeepEqual(i, zero.Interface())
	}
}

// Unique returns the distinct values of arr, keeping first occurrence order
func Unique[T comparable](arr []T) []T {
	seen := make(map[T]struct{}, len(arr))
	result := make([]T, 0, len(arr))
	for _, v := range arr {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}
