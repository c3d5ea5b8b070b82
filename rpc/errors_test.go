package rpc

import (
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestIsPermanentError(t *testing.T) {
	c := qt.New(t)
	c.Assert(IsPermanentError(errors.New("execution reverted: custom message")), qt.IsTrue)
	c.Assert(IsPermanentError(errors.New("EXECUTION REVERTED")), qt.IsTrue)
	c.Assert(IsPermanentError(errors.New("connection refused")), qt.IsFalse)
	c.Assert(IsPermanentError(nil), qt.IsFalse)
}

func TestParseErrorWrapsPlainError(t *testing.T) {
	c := qt.New(t)
	err := errors.New("boom")
	parsed := ParseError(err)
	c.Assert(parsed, qt.Not(qt.IsNil))
	c.Assert(parsed.Message, qt.Equals, "boom")
	c.Assert(parsed.Code, qt.Equals, 0)
}

func TestParseErrorNilIsNil(t *testing.T) {
	c := qt.New(t)
	c.Assert(ParseError(nil), qt.IsNil)
}

func TestRPCErrorString(t *testing.T) {
	c := qt.New(t)
	e := &RPCError{Code: -32000, Message: "reverted"}
	c.Assert(strings.Contains(e.Error(), "reverted"), qt.IsTrue)
	c.Assert(e.ErrorCode(), qt.Equals, -32000)
}
