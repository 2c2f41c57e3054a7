package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewIncludesLocation(t *testing.T) {
	err := New("something %s", "broke")
	if !strings.Contains(err.Error(), "errors_test.go") {
		t.Errorf("missing file name: %v", err)
	}
	if !strings.Contains(err.Error(), "something broke") {
		t.Errorf("missing message: %v", err)
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "context") != nil {
		t.Fatal("wrapping nil must return nil")
	}

	base := fmt.Errorf("base failure")
	wrapped := Wrapf(base, "while doing %s", "work")
	if !strings.Contains(wrapped.Error(), "while doing work") {
		t.Errorf("missing context: %v", wrapped)
	}
	if !Is(wrapped, base) {
		t.Error("wrapped error must keep the original in its chain")
	}
}

func TestErrNoProviderChain(t *testing.T) {
	err := Wrapf(ErrNoProvider, "cannot proceed")
	if !Is(err, ErrNoProvider) {
		t.Error("ErrNoProvider must survive wrapping")
	}
}
