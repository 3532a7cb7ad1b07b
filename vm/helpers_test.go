package vm

import "testing"

// constant returns a body that always answers v.
func constant(v Value) BodyFunc {
	return func(t *Thread, f *Frame) (Value, error) { return v, nil }
}

// dispatchFromTop runs site.Dispatch inside a top-level activation on th.
func dispatchFromTop(th *Thread, site *CallSite, recv Value, args ...Value) (Value, error) {
	return th.Run(func(th *Thread, f *Frame) (Value, error) {
		return site.Dispatch(th, f, recv, args, nil)
	})
}

func mustDispatch(t *testing.T, th *Thread, site *CallSite, recv Value, args ...Value) Value {
	t.Helper()
	v, err := dispatchFromTop(th, site, recv, args...)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", site.Label(), err)
	}
	return v
}
