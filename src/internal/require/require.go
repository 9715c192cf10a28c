// Package require provides test assertions that fail the test fatally.
package require

import (
	"reflect"
	"testing"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

func logMessage(tb testing.TB, msgAndArgs ...interface{}) {
	tb.Helper()
	if len(msgAndArgs) == 1 {
		tb.Logf(msgAndArgs[0].(string))
	}
	if len(msgAndArgs) > 1 {
		tb.Logf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	}
}

// Equal checks equality of two values with reflect.DeepEqual.
func Equal(tb testing.TB, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if !reflect.DeepEqual(expected, actual) {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Not equal: %#v (expected)\n"+
			"        != %#v (actual)", expected, actual)
	}
}

// NotEqual checks inequality of two values.
func NotEqual(tb testing.TB, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if reflect.DeepEqual(expected, actual) {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Equal: %#v (expected)\n"+
			"    == %#v (actual)", expected, actual)
	}
}

// NoError checks that err is nil.
func NoError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	if err != nil {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("No error is expected but got %v", err)
	}
}

// YesError checks that err is non-nil.
func YesError(tb testing.TB, err error, msgAndArgs ...interface{}) {
	tb.Helper()
	if err == nil {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Error is expected but got %v", err)
	}
}

// ErrorIs checks that target is in err's chain.
func ErrorIs(tb testing.TB, err, target error, msgAndArgs ...interface{}) {
	tb.Helper()
	if !errors.Is(err, target) {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Expected error chain of %v to include %v", err, target)
	}
}

// True checks that value is true.
func True(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	if !value {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Should be true")
	}
}

// False checks that value is false.
func False(tb testing.TB, value bool, msgAndArgs ...interface{}) {
	tb.Helper()
	if value {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Should be false")
	}
}

// Nil checks that object is nil.
func Nil(tb testing.TB, object interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if !isNil(object) {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Expected value to be nil, got %#v", object)
	}
}

// NotNil checks that object is not nil.
func NotNil(tb testing.TB, object interface{}, msgAndArgs ...interface{}) {
	tb.Helper()
	if isNil(object) {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Expected value not to be nil.")
	}
}

// Len checks that the length of object is n.
func Len(tb testing.TB, object interface{}, n int, msgAndArgs ...interface{}) {
	tb.Helper()
	value := reflect.ValueOf(object)
	if value.Len() != n {
		logMessage(tb, msgAndArgs...)
		tb.Fatalf("Expected len %d, got %d (%#v)", n, value.Len(), object)
	}
}

func isNil(object interface{}) bool {
	if object == nil {
		return true
	}
	value := reflect.ValueOf(object)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return value.IsNil()
	}
	return false
}
