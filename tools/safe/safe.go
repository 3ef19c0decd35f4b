package safe

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"TeamSpace/logger"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required collaborators during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	SafeGoName("", f)
}

// SafeGoName is SafeGo with a tag that shows up in the recovery log.
func SafeGoName(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %s panic recovered: %v\n%s", name, r, debug.Stack())
			}
		}()
		f()
	}()
}
