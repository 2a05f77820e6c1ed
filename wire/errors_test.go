package wire

import (
	"errors"
	"testing"
)

func TestErrorCodeFromInt(t *testing.T) {
	code, err := ErrorCodeFromInt(4)
	if err != nil {
		t.Fatalf("known code: %v", err)
	}
	if code != ErrorIdentifyFailed {
		t.Errorf("got %v, want ErrorIdentifyFailed", code)
	}
}

func TestErrorCodeFromIntUnknown(t *testing.T) {
	code, err := ErrorCodeFromInt(9999)
	if !errors.Is(err, ErrUnknownErrorCode) {
		t.Fatalf("expected ErrUnknownErrorCode, got %v", err)
	}
	if code != ErrorUnknown {
		t.Errorf("got %v, want ErrorUnknown", code)
	}
}

func TestFatalClassification(t *testing.T) {
	fatal := []ErrorCode{ErrorBanned, ErrorKicked, ErrorLoggedInAgain, ErrorIdentifyFailed}
	for _, c := range fatal {
		if !c.Fatal() {
			t.Errorf("%v should be fatal", c)
		}
	}
	recoverable := []ErrorCode{ErrorSyntax, ErrorMessageThrottle, ErrorChannelMissing, ErrorUnknown}
	for _, c := range recoverable {
		if c.Fatal() {
			t.Errorf("%v should not be fatal", c)
		}
	}
}

func TestThrottleClassification(t *testing.T) {
	if !ErrorAdThrottle.Throttle() {
		t.Error("ad throttle should classify as throttle")
	}
	if ErrorBanned.Throttle() {
		t.Error("banned should not classify as throttle")
	}
}
