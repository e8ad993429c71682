package kct

// CutWith 按给定的任意一个符号切割，连续的符号视为一个，首尾的符号忽略
// CutWith("slot  12\t", ' ', '\t')->{"slot","12"}
func CutWith(str string, cuts ...byte) []string {
	var rs []string
	start := -1
	for i := 0; i <= len(str); i++ {
		sep := i == len(str) || isCut(str[i], cuts)
		switch {
		case sep && start >= 0:
			rs = append(rs, str[start:i])
			start = -1
		case !sep && start < 0:
			start = i
		}
	}
	return rs
}

func isCut(c byte, cuts []byte) bool {
	for _, v := range cuts {
		if c == v {
			return true
		}
	}
	return false
}
