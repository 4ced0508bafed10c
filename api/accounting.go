package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/runmeter/runmeter/domain"
)

// GetBalance returns a user's current credit balance.
// GET /v1/accounting/balance/:user_id
func (h *Handler) GetBalance(c echo.Context) error {
	if err := h.requireServiceKey(c); err != nil {
		return fail(c, err)
	}

	balance, err := h.ledger.GetBalance(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, balance)
}

// Charge debits credits from a user for an agent run.
// POST /v1/accounting/charge/:user_id
func (h *Handler) Charge(c echo.Context) error {
	if err := h.requireServiceKey(c); err != nil {
		return fail(c, err)
	}

	var req domain.ChargeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	txn, err := h.ledger.Charge(c.Request().Context(), c.Param("user_id"), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, txn)
}

// Refill adds credits to a user's balance.
// POST /v1/accounting/refill/:user_id
func (h *Handler) Refill(c echo.Context) error {
	if err := h.requireServiceKey(c); err != nil {
		return fail(c, err)
	}

	var req domain.RefillRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	txn, err := h.ledger.Refill(c.Request().Context(), c.Param("user_id"), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, txn)
}

// GetReport returns a per-agent usage report for the requested interval.
// GET /v1/accounting/report/:interval
func (h *Handler) GetReport(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return fail(c, err)
	}

	interval := c.Param("interval")
	if !domain.ValidInterval(interval) {
		return badRequest(c, "interval must be 'day', 'month', or 'year'")
	}

	report, err := h.ledger.Report(c.Request().Context(), userID, domain.ReportInterval(interval))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
