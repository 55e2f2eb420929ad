package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

type billingApi struct {
	auth        *authenticator
	svc         *billing.Service
	generator   *billing.Generator
	commissions *billing.CommissionCalculator
	validate    *validator.Validate
	clock       core.Clock
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := billingApi{
		auth:        auth,
		svc:         deps.PaymentSvc,
		generator:   deps.Generator,
		commissions: deps.Commissions,
		validate:    deps.Validate,
		clock:       deps.Clock,
	}
	edit := capabilityMiddleware(auth, user.CanEditPayment)
	generate := capabilityMiddleware(auth, user.CanGeneratePayments)

	pg := g.Group("/payments", jwt, capabilityMiddleware(auth))
	pg.GET("", api.queryPayments)
	pg.POST("", api.createPayment, edit)
	pg.GET("/check", api.checkExisting, generate)
	pg.POST("/generate", api.generate, generate)
	pg.POST("/batch-process", api.processBatch, edit)
	pg.GET("/:id", api.retrievePayment)
	pg.POST("/:id/process", api.process, edit)
	pg.POST("/:id/cancel", api.cancel, edit)
	pg.POST("/:id/undo-payment", api.undoPayment, edit)
	pg.POST("/:id/undo-cancel", api.undoCancel, edit)

	cg := g.Group("/commissions", jwt, capabilityMiddleware(auth))
	cg.GET("", api.queryCommissions)
	cg.GET("/:id", api.retrieveCommission)
	cg.POST("/:id/pay", api.payCommission, capabilityMiddleware(auth, user.CanManageFinance))
}

// restrictedInstructor is the instructor whose own records are the only ones usr may see,
// or "" when usr may see everything.
func restrictedInstructor(usr user.User) string {
	if usr.Can(user.CanEditPayment) || usr.Can(user.CanManageFinance) {
		return ""
	}
	return usr.ID
}

func (api *billingApi) period(month, year int) (billing.Period, error) {
	if month == 0 && year == 0 {
		return billing.PeriodOf(api.clock.Now()), nil
	}
	return billing.NewPeriod(month, year)
}

// Payments

func (api *billingApi) queryPayments(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := &billing.PaymentFilter{
		StudentID:    ctx.QueryParam("student_id"),
		InstructorID: ctx.QueryParam("instructor_id"),
	}
	if id := restrictedInstructor(usr); id != "" {
		filter.InstructorID = id
	}

	month, err := intParam(ctx, "month", 0)
	if err != nil {
		return err
	}
	year, err := intParam(ctx, "year", 0)
	if err != nil {
		return err
	}
	if month != 0 || year != 0 {
		p, err := billing.NewPeriod(month, year)
		if err != nil {
			return err
		}
		filter.ReferenceMonth = p.ReferenceMonth()
	}
	for _, st := range ctx.QueryParams()["status"] {
		filter.Statuses = append(filter.Statuses, billing.Status(st))
	}

	views, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if views == nil {
		views = []billing.View{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *billingApi) retrievePayment(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	view, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	if id := restrictedInstructor(usr); id != "" && view.InstructorID != id {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *billingApi) createPayment(ctx echo.Context) error {
	var data billing.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	view, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment")
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api *billingApi) checkExisting(ctx echo.Context) error {
	month, err := intParam(ctx, "month", 0)
	if err != nil {
		return err
	}
	year, err := intParam(ctx, "year", 0)
	if err != nil {
		return err
	}
	period, err := api.period(month, year)
	if err != nil {
		return err
	}
	report, err := api.generator.CheckExisting(ctx.Request().Context(), period)
	if err != nil {
		return errors.Wrap(err, "checking existing payments")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *billingApi) generate(ctx echo.Context) error {
	var data GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	period, err := api.period(data.Month, data.Year)
	if err != nil {
		return err
	}
	if err = billing.EnsureCurrentPeriod(api.clock, period); err != nil {
		return err
	}
	res, err := api.generator.Generate(ctx.Request().Context(), period)
	if err != nil {
		return errors.Wrap(err, "generating payments")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *billingApi) process(ctx echo.Context) error {
	var data billing.ProcessPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProcessPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	conf, err := api.svc.Process(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "processing payment")
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *billingApi) processBatch(ctx echo.Context) error {
	var data billing.BatchProcessPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchProcessPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.ProcessBatch(ctx.Request().Context(), data.IDs, data.ProcessPayment))
}

func (api *billingApi) cancel(ctx echo.Context) error {
	var data billing.CancelPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CancelPayment")
	}
	if data.Force {
		usr, err := api.auth.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.Can(user.CanForceCancel) {
			return errHttpForbidden
		}
	}
	view, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "cancelling payment")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *billingApi) undoPayment(ctx echo.Context) error {
	view, err := api.svc.UndoPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "undoing payment")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *billingApi) undoCancel(ctx echo.Context) error {
	view, err := api.svc.UndoCancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "undoing cancellation")
	}
	return ctx.JSON(http.StatusOK, view)
}

// Commissions

func (api *billingApi) queryCommissions(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(billing.CommissionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []billing.Commission{})
	}
	if id := restrictedInstructor(usr); id != "" {
		filter.InstructorID = id
	}

	cms, err := api.commissions.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying commissions")
	}
	if cms == nil {
		cms = []billing.Commission{}
	}
	return ctx.JSON(http.StatusOK, cms)
}

func (api *billingApi) retrieveCommission(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cm, err := api.commissions.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting commission")
	}
	if id := restrictedInstructor(usr); id != "" && cm.InstructorID != id {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, cm)
}

func (api *billingApi) payCommission(ctx echo.Context) error {
	cm, err := api.commissions.Pay(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "paying commission")
	}
	return ctx.JSON(http.StatusOK, cm)
}

type GenerateRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}
