package rpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// permanentErrorPatterns are node responses that will never succeed on
// retry or endpoint rotation (contract-level rejections, not availability
// problems), so retryAndCheckErr fails fast on them instead of burning
// through the endpoint pool.
var permanentErrorPatterns = []string{
	"execution reverted",
}

// IsPermanentError reports whether err is a permanent failure that should
// not be retried.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range permanentErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// RPCError is a normalized JSON-RPC error, reconstructed from whatever
// concrete error type the go-ethereum rpc package returned.
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    hexutil.Bytes `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code: %d, data: %s)", e.Message, e.Code, e.Data.String())
}

func (e *RPCError) ErrorCode() int { return e.Code }
func (e *RPCError) ErrorData() any { return e.Data }

// ParseError extracts code and revert data from err, if it carries them.
func ParseError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var asRPCErr *RPCError
	if errors.As(err, &asRPCErr) {
		return asRPCErr
	}

	out := &RPCError{Message: err.Error()}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		out.Code = rpcErr.ErrorCode()
		out.Message = rpcErr.Error()
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		switch v := dataErr.ErrorData().(type) {
		case []byte:
			out.Data = hexutil.Bytes(v)
		case string:
			if b, derr := hexutil.Decode(v); derr == nil {
				out.Data = hexutil.Bytes(b)
			}
		}
	}
	return out
}
