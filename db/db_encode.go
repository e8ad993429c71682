package db

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/liangmanlin/netsync/kernel"
)

func Encode(v interface{}) string {
	switch v2 := v.(type) {
	case int:
		return strconv.Itoa(v2)
	case int32:
		return strconv.FormatInt(int64(v2), 10)
	case int64:
		return strconv.FormatInt(v2, 10)
	case uint:
		return strconv.FormatUint(uint64(v2), 10)
	case uint32:
		return strconv.FormatUint(uint64(v2), 10)
	case uint64:
		return strconv.FormatUint(v2, 10)
	case string:
		return quote([]byte(v2))
	case []byte:
		// 二进制直接用十六进制，避免转义
		if len(v2) == 0 {
			return "''"
		}
		return fmt.Sprintf("X'%x'", v2)
	default:
		kernel.ErrorLog("db encode error:%#v", v2)
		return "1"
	}
}

func quote(bin []byte) string {
	sl := make([]byte, 1, len(bin)+2)
	sl[0] = '\''
	for _, b := range bin {
		switch b {
		case 0:
			sl = append(sl, 92, 48) // \\\0
		case 34:
			sl = append(sl, 92, 34) // \\\"
		case 39:
			sl = append(sl, 92, 39) // \\\'
		case 92:
			sl = append(sl, 92, 92) // \\\\
		default:
			sl = append(sl, b)
		}
	}
	sl = append(sl, '\'')
	return string(sl)
}

func encodeValue(f *reflect.Value) string {
	switch f.Kind() {
	case reflect.Bool:
		var v = int32(0)
		if f.Bool() {
			v = 1
		}
		return Encode(v)
	case reflect.Slice:
		return Encode(f.Bytes())
	default:
		return Encode(f.Interface())
	}
}
