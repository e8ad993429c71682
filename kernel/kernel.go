package kernel

import (
	"runtime/debug"
)

func Catch() {
	p := recover()
	if p != nil {
		ErrorLog("catch error:%s,Stack:%s", p, debug.Stack())
	}
}

func CatchNoPrint() {
	recover()
}

func CatchFun(f func()) {
	defer Catch()
	f()
}

// CatchHook runs user code for one replicated object. A panic is logged with
// the object id and hook name and reported as false, it never escapes.
func CatchHook(objectID int32, hook string, f func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			Logger().Error().
				Int32("object_id", objectID).
				Str("hook", hook).
				Bytes("stack", debug.Stack()).
				Msgf("hook panic: %v", p)
		}
	}()
	f()
	return true
}
