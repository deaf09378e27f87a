package handler

import (
	"context"
	"errors"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, offboarding.ErrScopeMissing):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, offboarding.ErrScope):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, offboarding.ErrValidation),
		errors.Is(err, employee.ErrInvalidID),
		errors.Is(err, employee.ErrInvalidScopeID),
		errors.Is(err, employee.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, offboarding.ErrNotFound), errors.Is(err, employee.ErrEmployeeNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, offboarding.ErrActiveRunExists):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, offboarding.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, offboarding.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
