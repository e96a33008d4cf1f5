package kvdoc

import (
	"fmt"
	"strings"
)

// SchemaError reports a malformed schema definition (InvalidSchema).
type SchemaError struct {
	Path  string
	Value any
	Msg   string
}

func schemaErrf(path string, value any, format string, args ...any) error {
	return &SchemaError{path, value, fmt.Sprintf(format, args...)}
}

func (e *SchemaError) Error() string {
	var buf strings.Builder
	buf.WriteString("invalid schema")
	if e.Path != "" {
		buf.WriteString(" at ")
		buf.WriteString(e.Path)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	fmt.Fprintf(&buf, " (received: %s)", loggableAny(e.Value))
	return buf.String()
}

// QueryError reports a missing key or a broken pointer.
type QueryError struct {
	Table  string
	Key    string
	Reason string
	Err    error
}

func queryErrf(table, key string, err error, format string, args ...any) error {
	return &QueryError{table, key, fmt.Sprintf(format, args...), err}
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table)
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Reason != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Reason)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DeserializeError reports a stored payload that the codec cannot parse.
type DeserializeError struct {
	Data string
	Err  error
}

func (e *DeserializeError) Unwrap() error {
	return e.Err
}

func (e *DeserializeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	data := e.Data
	if n > prefixLen+suffixLen {
		data = e.Data[:prefixLen] + "..." + e.Data[n-suffixLen:]
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to deserialize value (%d) %q: %v", n, data, e.Err)
	}
	return fmt.Sprintf("failed to deserialize value (%d) %q", n, data)
}

// ValidationError reports a value that does not match the table schema.
type ValidationError struct {
	Path     string
	Expected string
	Received string
}

func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("invalid value at %s: expected %s, received %s", path, e.Expected, e.Received)
}
