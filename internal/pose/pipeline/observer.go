package pipeline

import "reflect"

// FrameObserver receives every FrameResult the driver emits, including the
// final empty result on Stop. Observers run synchronously on the driver's
// goroutine and must not block; anything slow should hand off internally.
type FrameObserver interface {
	OnFrame(FrameResult)
}

// MultiObserver fans one FrameResult out to several observers in order.
type MultiObserver []FrameObserver

func (m MultiObserver) OnFrame(r FrameResult) {
	for _, o := range m {
		if o != nil {
			o.OnFrame(r)
		}
	}
}

// FuncObserver adapts a plain function to the FrameObserver interface.
type FuncObserver func(FrameResult)

func (f FuncObserver) OnFrame(r FrameResult) { f(r) }

// isNilInterface reports whether the interface value is nil or wraps a nil
// pointer, so optional hooks can be passed as typed nils.
func isNilInterface(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
