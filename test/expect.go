package test

import (
	"errors"
	"fmt"
	"testing"
)

func id(tags ...any) string {
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprint(tags...) + ": "
}

// ExpectEquality tests v for equality with expectedValue.
func ExpectEquality[T comparable](t *testing.T, v T, expectedValue T, tags ...any) bool {
	t.Helper()
	if v != expectedValue {
		t.Errorf("%sequality test of type %T failed: '%v' does not equal '%v'", id(tags...), v, v, expectedValue)
		return false
	}
	return true
}

// ExpectInequality tests v for inequality with notExpected.
func ExpectInequality[T comparable](t *testing.T, v T, notExpected T, tags ...any) bool {
	t.Helper()
	if v == notExpected {
		t.Errorf("%sinequality test of type %T failed: '%v' equals '%v'", id(tags...), v, v, notExpected)
		return false
	}
	return true
}

// ExpectSuccess tests v for a success value. Supported types:
//
//	bool  -> true
//	error -> nil
//	nil   -> success
func ExpectSuccess(t *testing.T, v any, tags ...any) bool {
	t.Helper()
	if !success(t, v) {
		t.Errorf("%sexpected success (%T: %v)", id(tags...), v, v)
		return false
	}
	return true
}

// ExpectFailure tests v for a failure value. See ExpectSuccess.
func ExpectFailure(t *testing.T, v any, tags ...any) bool {
	t.Helper()
	if success(t, v) {
		t.Errorf("%sexpected failure (%T)", id(tags...), v)
		return false
	}
	return true
}

// ExpectErrorIs tests that err wraps target.
func ExpectErrorIs(t *testing.T, err error, target error, tags ...any) bool {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("%sexpected error '%v', got '%v'", id(tags...), target, err)
		return false
	}
	return true
}

// DemandEquality is ExpectEquality but stops the test on failure.
func DemandEquality[T comparable](t *testing.T, v T, expectedValue T, tags ...any) {
	t.Helper()
	if v != expectedValue {
		t.Fatalf("%sequality test of type %T failed: '%v' does not equal '%v'", id(tags...), v, v, expectedValue)
	}
}

// DemandSuccess is ExpectSuccess but stops the test on failure.
func DemandSuccess(t *testing.T, v any, tags ...any) {
	t.Helper()
	if !success(t, v) {
		t.Fatalf("%sa success value is demanded (%T: %v)", id(tags...), v, v)
	}
}

func success(t *testing.T, v any) bool {
	t.Helper()
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return v
	case error:
		return v == nil
	default:
		t.Fatalf("unsupported type (%T) for expectation testing", v)
		return false
	}
}
