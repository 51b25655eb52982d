package rinex

import "fmt"

// HeaderParseError ошибка разбора распознанной строки заголовка
type HeaderParseError struct {
	Line    int
	Content string
	Field   string
	Err     error
}

func newHeaderParseError(line int, content, field string, err error) *HeaderParseError {
	return &HeaderParseError{
		Line:    line,
		Content: content,
		Field:   field,
		Err:     err,
	}
}

func (e *HeaderParseError) Error() string {
	return fmt.Sprintf("header line %d (%s): %v: %q", e.Line, e.Field, e.Err, e.Content)
}

func (e *HeaderParseError) Unwrap() error {
	return e.Err
}
