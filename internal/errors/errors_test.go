package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite errors package suite
type ErrorsTestSuite struct {
	suite.Suite
}

func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidEvent)
	suite.NotNil(err)
	suite.Equal(ErrInvalidEvent, err.Code)
	suite.Equal("invalid event", err.Message)
	suite.Empty(err.Details)

	err = New(ErrPersistenceWrite, "state.json", "disk full")
	suite.Equal("state.json; disk full", err.Details)
	suite.NotEmpty(err.Stack)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrDestinationUnresolved, "no dm channel for %s", "U123")
	suite.Equal(ErrDestinationUnresolved, err.Code)
	suite.Equal("no dm channel for U123", err.Details)
}

func (suite *ErrorsTestSuite) TestUnknownCodeFallsBack() {
	err := New(ErrorCode(9999))
	suite.Equal("unknown error", err.Message)
}

func (suite *ErrorsTestSuite) TestWrap() {
	cause := errors.New("connection reset")
	wrapped := Wrap(cause, ErrPersistenceWrite)
	suite.Equal(ErrPersistenceWrite, wrapped.Code)
	suite.Equal("connection reset", wrapped.Details)
	suite.Equal(cause, wrapped.Cause)
	suite.True(errors.Is(wrapped, cause))

	suite.Nil(Wrap(nil, ErrUnknown))

	appErr := New(ErrGuardRejected, "not the winner")
	rewrapped := Wrap(appErr, ErrPersistenceWrite, "channel C1")
	suite.Equal(ErrGuardRejected, rewrapped.Code)
	suite.Contains(rewrapped.Details, "channel C1")
	suite.Contains(rewrapped.Details, "not the winner")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	cause := errors.New("timeout")
	wrapped := Wrapf(cause, ErrPersistenceRead, "load %s", "scores.json")
	suite.Equal("load scores.json: timeout", wrapped.Details)
	suite.Equal(cause, wrapped.Unwrap())
}

func (suite *ErrorsTestSuite) TestIsFollowsChain() {
	err := fmt.Errorf("dispatch: %w", New(ErrUnsupportedOperation, "pin_message"))
	suite.True(Is(err, ErrUnsupportedOperation))
	suite.False(Is(err, ErrInvalidEvent))
	suite.False(Is(nil, ErrInvalidEvent))
	suite.Equal(ErrUnsupportedOperation, GetCode(err))
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
}

func (suite *ErrorsTestSuite) TestClassification() {
	suite.True(IsRecoverable(New(ErrInvalidEvent)))
	suite.True(IsRecoverable(New(ErrGuardRejected)))
	suite.False(IsRecoverable(New(ErrPersistenceWrite)))
	suite.False(IsRecoverable(nil))

	suite.True(IsFatal(New(ErrDestinationUnresolved)))
	suite.True(IsFatal(New(ErrUnknownStep)))
	suite.True(IsFatal(errors.New("unexpected")))
	suite.False(IsFatal(New(ErrNotEligible)))
	suite.False(IsFatal(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "not found"}
	suite.Equal("[1002] not found", err.Error())
	err.Details = "channel C9"
	suite.Equal("[1002] not found: channel C9", err.Error())
}

func (suite *ErrorsTestSuite) TestHTTPStatus() {
	suite.Equal(404, New(ErrNotFound).HTTPStatus())
	suite.Equal(400, New(ErrInvalidParam).HTTPStatus())
	suite.Equal(409, New(ErrWrongStep).HTTPStatus())
	suite.Equal(401, New(ErrTokenInvalid).HTTPStatus())
	suite.Equal(403, New(ErrAuthorization).HTTPStatus())
	suite.Equal(503, New(ErrPersistenceRead).HTTPStatus())
	suite.Equal(500, New(ErrUnsupportedOperation).HTTPStatus())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	err := New(ErrTransportSend).WithCause(errors.New("broken pipe"))
	suite.Equal("broken pipe", err.Details)
	err = New(ErrTransportSend).WithDetails("channel D:U1")
	suite.Equal("channel D:U1", err.Details)
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	resp := NewErrorResponse(New(ErrTokenExpired), "req-1")
	suite.False(resp.Success)
	suite.Equal("req-1", resp.RequestID)
	suite.Positive(resp.Timestamp)
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
