package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowsmith/flowsmith/pkg/approval"
	"github.com/flowsmith/flowsmith/pkg/costgov"
	"github.com/flowsmith/flowsmith/pkg/execution"
	"github.com/flowsmith/flowsmith/pkg/orchestrator"
	"github.com/flowsmith/flowsmith/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps core errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "trigger template not found")

	case errors.Is(err, orchestrator.ErrUnknownValidationType):
		return badRequest(c, err.Error())

	case errors.Is(err, approval.ErrApprovalNotFound):
		return notFound(c, "approval not found")

	case errors.Is(err, approval.ErrAlreadyResolved):
		return conflict(c, "approval already resolved")

	case errors.Is(err, approval.ErrApprovalExpired):
		problem := problems.NewStatusProblem(410).
			WithInstance(c.Path()).
			WithType("approval_expired").
			WithDetail("approval has expired")

		return c.Status(fiber.StatusGone).JSON(problem)

	case execution.IsStaleTransition(err), execution.IsInvalidTransition(err),
		errors.Is(err, execution.ErrExecutionTerminal),
		errors.Is(err, execution.ErrExecutionNotPaused):
		return conflict(c, err.Error())

	case costgov.IsCostExceeded(err):
		problem := problems.NewStatusProblem(402).
			WithInstance(c.Path()).
			WithType("cost_exceeded").
			WithDetail(err.Error())

		return c.Status(fiber.StatusPaymentRequired).JSON(problem)

	default:
		return internalError(c, err)
	}
}
