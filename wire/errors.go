package wire

import (
	"errors"
	"fmt"
)

// ErrUnknownErrorCode reports an ERR number outside the known enumeration.
// Servers add codes over time; callers fall back to ErrorUnknown and keep
// the raw number.
var ErrUnknownErrorCode = errors.New("wire: unknown protocol error code")

// ErrorCode enumerates the server-reported ERR numbers. The set is closed
// and versionable: unrecognised numbers map to ErrorUnknown via
// ErrorCodeFromInt instead of failing hard.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = -1

	ErrorSuccess          ErrorCode = 0
	ErrorSyntax           ErrorCode = 1
	ErrorServerFull       ErrorCode = 2
	ErrorNotIdentified    ErrorCode = 3
	ErrorIdentifyFailed   ErrorCode = 4
	ErrorMessageThrottle  ErrorCode = 5
	ErrorCharacterMissing ErrorCode = 6
	ErrorProfileThrottle  ErrorCode = 7
	ErrorBanned           ErrorCode = 9
	ErrorRequiresAdmin    ErrorCode = 10
	ErrorAlreadyIdent     ErrorCode = 11
	ErrorMessageTooLong   ErrorCode = 14
	ErrorNotChannelOp     ErrorCode = 15
	ErrorChannelMissing   ErrorCode = 26
	ErrorAlreadyInChannel ErrorCode = 28
	ErrorTooManyChannels  ErrorCode = 30
	ErrorLoggedInAgain    ErrorCode = 31
	ErrorChannelBanned    ErrorCode = 32
	ErrorBadAuthMethod    ErrorCode = 33
	ErrorRollError        ErrorCode = 36
	ErrorInviteOnly       ErrorCode = 38
	ErrorTimedOut         ErrorCode = 39
	ErrorKicked           ErrorCode = 40
	ErrorSearchThrottle   ErrorCode = 50
	ErrorAdThrottle       ErrorCode = 56
	ErrorTooManyResults   ErrorCode = 62
)

var errorNames = map[ErrorCode]string{
	ErrorUnknown:          "unknown",
	ErrorSuccess:          "success",
	ErrorSyntax:           "syntax error",
	ErrorServerFull:       "server full",
	ErrorNotIdentified:    "not identified",
	ErrorIdentifyFailed:   "identification failed",
	ErrorMessageThrottle:  "message throttle",
	ErrorCharacterMissing: "character not found",
	ErrorProfileThrottle:  "profile request throttle",
	ErrorBanned:           "banned",
	ErrorRequiresAdmin:    "requires admin",
	ErrorAlreadyIdent:     "already identified",
	ErrorMessageTooLong:   "message too long",
	ErrorNotChannelOp:     "not a channel operator",
	ErrorChannelMissing:   "channel not found",
	ErrorAlreadyInChannel: "already in channel",
	ErrorTooManyChannels:  "too many channels",
	ErrorLoggedInAgain:    "logged in from another location",
	ErrorChannelBanned:    "banned from channel",
	ErrorBadAuthMethod:    "invalid auth method",
	ErrorRollError:        "invalid roll",
	ErrorInviteOnly:       "channel is invite only",
	ErrorTimedOut:         "timed out",
	ErrorKicked:           "kicked from chat",
	ErrorSearchThrottle:   "search throttle",
	ErrorAdThrottle:       "ad throttle",
	ErrorTooManyResults:   "too many search results",
}

// fatalCodes end the session; the server will drop the connection and a
// plain reconnect cannot succeed without caller intervention.
var fatalCodes = map[ErrorCode]bool{
	ErrorServerFull:     true,
	ErrorIdentifyFailed: true,
	ErrorBanned:         true,
	ErrorAlreadyIdent:   true,
	ErrorLoggedInAgain:  true,
	ErrorBadAuthMethod:  true,
	ErrorTimedOut:       true,
	ErrorKicked:         true,
}

// throttleCodes indicate server-side rate limiting; callers should back
// off before retrying the offending command.
var throttleCodes = map[ErrorCode]bool{
	ErrorMessageThrottle: true,
	ErrorProfileThrottle: true,
	ErrorSearchThrottle:  true,
	ErrorAdThrottle:      true,
}

// ErrorCodeFromInt maps a raw ERR number onto the enumeration. Unknown
// numbers return (ErrorUnknown, ErrUnknownErrorCode) so a server that
// introduces new codes never crashes the client.
func ErrorCodeFromInt(n int) (ErrorCode, error) {
	code := ErrorCode(n)
	if _, ok := errorNames[code]; !ok || code == ErrorUnknown {
		return ErrorUnknown, fmt.Errorf("%w: %d", ErrUnknownErrorCode, n)
	}
	return code, nil
}

// Fatal reports whether the error terminates the session.
func (c ErrorCode) Fatal() bool { return fatalCodes[c] }

// Throttle reports whether the error is a rate-limit signal.
func (c ErrorCode) Throttle() bool { return throttleCodes[c] }

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error(%d)", int(c))
}
