package satellite

import "fmt"

// ParseError ошибка разбора файла спутника
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "satellite file: " + msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
