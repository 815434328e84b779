package response

import "errors"

// Result codes. Zero and positive values are success, negative values failures.
const (
	CodeOK                  = 0
	CodeComplete            = 1
	CodeNotInitialized      = -1
	CodeAlreadyInitialized  = -2
	CodeInvalidFrequency    = -3
	CodeInvalidStimulus     = -4
	CodeInvalidTrigger      = -5
	CodeInvalidChannel      = -6
	CodeAlreadyComplete     = -7
	CodeInstrumentIO        = -8
	CodeScopeUnreachable    = -10
	CodeStimulusUnreachable = -11
)

// Error is a sweep failure carrying its result code
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Code returns the result code of e
func (e *Error) Code() int {
	return e.code
}

var (
	ErrNotInitialized      = &Error{CodeNotInitialized, "sweep not initialized"}
	ErrAlreadyInitialized  = &Error{CodeAlreadyInitialized, "sweep already initialized"}
	ErrInvalidFrequency    = &Error{CodeInvalidFrequency, "invalid frequency range"}
	ErrInvalidStimulus     = &Error{CodeInvalidStimulus, "invalid stimulus"}
	ErrInvalidTrigger      = &Error{CodeInvalidTrigger, "invalid trigger"}
	ErrInvalidChannel      = &Error{CodeInvalidChannel, "invalid measurement channel"}
	ErrAlreadyComplete     = &Error{CodeAlreadyComplete, "sweep already complete"}
	ErrInstrumentIO        = &Error{CodeInstrumentIO, "instrument transaction failed"}
	ErrScopeUnreachable    = &Error{CodeScopeUnreachable, "oscilloscope unreachable"}
	ErrStimulusUnreachable = &Error{CodeStimulusUnreachable, "stimulus generator unreachable"}
)

// Code maps err to a result code. Errors that carry no code, a cancelled
// context among them, are reported as instrument failures.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeInstrumentIO
}
