package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

const (
	defaultMonthsAhead = 3
	maxMonths          = 24
)

type financeApi struct {
	svc      *finance.Service
	validate *validator.Validate
	loc      *time.Location
}

func registerFinanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := financeApi{
		svc:      deps.FinanceSvc,
		validate: deps.Validate,
		loc:      deps.Location,
	}

	fg := g.Group("/finance", jwt, capabilityMiddleware(auth, user.CanManageFinance))
	fg.GET("/transactions", api.queryTransactions)
	fg.GET("/expenses", api.queryExpenses)
	fg.POST("/expenses", api.registerExpense)
	fg.GET("/history", api.history)
	fg.GET("/projection", api.projection)
}

func (api *financeApi) dateRange(ctx echo.Context) (from, to time.Time, err error) {
	if from, err = timeParam(ctx, "from", api.loc); err != nil {
		return
	}
	to, err = timeParam(ctx, "to", api.loc)
	return
}

func (api *financeApi) queryTransactions(ctx echo.Context) error {
	filter := new(finance.TransactionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []finance.Transaction{})
	}
	var err error
	if filter.From, filter.To, err = api.dateRange(ctx); err != nil {
		return err
	}

	txs, err := api.svc.Transactions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txs == nil {
		txs = []finance.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txs)
}

func (api *financeApi) queryExpenses(ctx echo.Context) error {
	filter := new(finance.ExpenseFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []finance.Expense{})
	}
	var err error
	if filter.From, filter.To, err = api.dateRange(ctx); err != nil {
		return err
	}

	exps, err := api.svc.Expenses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying expenses")
	}
	if exps == nil {
		exps = []finance.Expense{}
	}
	return ctx.JSON(http.StatusOK, exps)
}

func (api *financeApi) registerExpense(ctx echo.Context) error {
	var data finance.NewExpense
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExpense")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	exp, err := api.svc.RegisterExpense(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering expense")
	}
	return ctx.JSON(http.StatusCreated, exp)
}

func monthsParam(ctx echo.Context, name string, def int) (int, error) {
	n, err := intParam(ctx, name, def)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxMonths {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be between 1 and 24"})
	}
	return n, nil
}

func (api *financeApi) history(ctx echo.Context) error {
	months, err := monthsParam(ctx, "months", 6)
	if err != nil {
		return err
	}
	points, err := api.svc.MonthlyHistory(ctx.Request().Context(), months)
	if err != nil {
		return errors.Wrap(err, "building monthly history")
	}
	return ctx.JSON(http.StatusOK, points)
}

func (api *financeApi) projection(ctx echo.Context) error {
	historyMonths, err := monthsParam(ctx, "history", 6)
	if err != nil {
		return err
	}
	ahead, err := monthsParam(ctx, "months", defaultMonthsAhead)
	if err != nil {
		return err
	}
	proj, err := api.svc.ProjectAhead(ctx.Request().Context(), historyMonths, ahead)
	if err != nil {
		return errors.Wrap(err, "projecting finances")
	}
	return ctx.JSON(http.StatusOK, proj)
}
