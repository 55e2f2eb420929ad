package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

type scheduleApi struct {
	auth     *authenticator
	svc      *schedule.Service
	validate *validator.Validate
	loc      *time.Location
}

func registerScheduleAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := scheduleApi{
		auth:     auth,
		svc:      deps.ScheduleSvc,
		validate: deps.Validate,
		loc:      deps.Location,
	}
	manage := capabilityMiddleware(auth, user.CanManageSchedule)

	cg := g.Group("/classes", jwt, capabilityMiddleware(auth))
	cg.GET("", api.queryClasses)
	cg.GET("/conflicts", api.checkConflict)
	cg.POST("", api.createClass, manage)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass, manage)
	cg.POST("/:id/enroll", api.enroll, manage)
	cg.POST("/:id/unenroll", api.unenroll, manage)
	cg.POST("/:id/complete", api.complete, manage)
	cg.POST("/:id/cancel", api.cancel, manage)

	tg := g.Group("/templates", jwt, capabilityMiddleware(auth))
	tg.GET("", api.queryTemplates)
	tg.POST("", api.createTemplate, manage)
	tg.GET("/:id", api.retrieveTemplate)
	tg.PUT("/:id", api.updateTemplate, manage)
	tg.DELETE("/:id", api.deleteTemplate, manage)
	tg.POST("/:id/expand", api.expandTemplate, manage)
	tg.POST("/:id/activate", api.activateTemplate, manage)
	tg.POST("/:id/deactivate", api.deactivateTemplate, manage)
}

// instructorFor returns the instructor a new class or template is booked for.
// Users who cannot choose an instructor always book for themselves.
func (api *scheduleApi) instructorFor(ctx echo.Context, requested string) (string, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}
	if usr.Can(user.CanChooseInstructor) && requested != "" {
		return requested, nil
	}
	return usr.ID, nil
}

// Classes

func (api *scheduleApi) queryClasses(ctx echo.Context) error {
	filter := new(schedule.ClassFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []schedule.Class{})
	}
	var err error
	if filter.From, err = timeParam(ctx, "from", api.loc); err != nil {
		return err
	}
	if filter.To, err = timeParam(ctx, "to", api.loc); err != nil {
		return err
	}
	filter.ExcludeID = ""
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []schedule.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *scheduleApi) checkConflict(ctx echo.Context) error {
	instructorID := ctx.QueryParam("instructor_id")
	start, err := timeParam(ctx, "start", api.loc)
	if err != nil {
		return err
	}
	end, err := timeParam(ctx, "end", api.loc)
	if err != nil {
		return err
	}
	if instructorID == "" || start.IsZero() || end.IsZero() {
		return core.NewValidationError(errors.New("instructor_id, start and end are required"))
	}

	conflict, err := api.svc.HasConflict(ctx.Request().Context(), instructorID, start, end, ctx.QueryParam("exclude_id"))
	if err != nil {
		return errors.Wrap(err, "checking conflict")
	}
	return ctx.JSON(http.StatusOK, ConflictResponse{Conflict: conflict})
}

func (api *scheduleApi) createClass(ctx echo.Context) error {
	var data schedule.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	instructorID, err := api.instructorFor(ctx, data.InstructorID)
	if err != nil {
		return err
	}
	data.InstructorID = instructorID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *scheduleApi) retrieveClass(ctx echo.Context) error {
	cls, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *scheduleApi) updateClass(ctx echo.Context) error {
	var data schedule.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.InstructorID != "" {
		usr, err := api.auth.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.Can(user.CanChooseInstructor) && data.InstructorID != usr.ID {
			return errHttpForbidden
		}
	}

	cls, err := api.svc.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *scheduleApi) enroll(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	cls, err := api.svc.Enroll(ctx.Request().Context(), ctx.Param("id"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *scheduleApi) unenroll(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	cls, err := api.svc.Unenroll(ctx.Request().Context(), ctx.Param("id"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *scheduleApi) complete(ctx echo.Context) error {
	cls, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *scheduleApi) cancel(ctx echo.Context) error {
	cls, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

// Templates

func (api *scheduleApi) queryTemplates(ctx echo.Context) error {
	filter := new(schedule.TemplateFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []schedule.Template{})
	}
	tpls, err := api.svc.QueryTemplates(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	if tpls == nil {
		tpls = []schedule.Template{}
	}
	return ctx.JSON(http.StatusOK, tpls)
}

func (api *scheduleApi) createTemplate(ctx echo.Context) error {
	var data schedule.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	instructorID, err := api.instructorFor(ctx, data.InstructorID)
	if err != nil {
		return err
	}
	data.InstructorID = instructorID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tpl, res, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, TemplateResponse{Template: tpl, Expansion: res})
}

func (api *scheduleApi) retrieveTemplate(ctx echo.Context) error {
	tpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *scheduleApi) updateTemplate(ctx echo.Context) error {
	var data schedule.UpdateTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	instructorID, err := api.instructorFor(ctx, data.InstructorID)
	if err != nil {
		return err
	}
	data.InstructorID = instructorID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tpl, res, err := api.svc.UpdateTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, TemplateResponse{Template: tpl, Expansion: res})
}

func (api *scheduleApi) deleteTemplate(ctx echo.Context) error {
	deleted, err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.JSON(http.StatusOK, DeletedResponse{Deleted: deleted})
}

func (api *scheduleApi) expandTemplate(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	tpl, err := api.svc.GetTemplate(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	res, err := api.svc.Expand(reqCtx, tpl)
	if err != nil {
		return errors.Wrap(err, "expanding template")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *scheduleApi) activateTemplate(ctx echo.Context) error {
	return api.setTemplateActive(ctx, true)
}

func (api *scheduleApi) deactivateTemplate(ctx echo.Context) error {
	return api.setTemplateActive(ctx, false)
}

func (api *scheduleApi) setTemplateActive(ctx echo.Context, active bool) error {
	tpl, res, err := api.svc.SetTemplateActive(ctx.Request().Context(), ctx.Param("id"), active)
	if err != nil {
		return errors.Wrap(err, "changing template activation")
	}
	return ctx.JSON(http.StatusOK, TemplateResponse{Template: tpl, Expansion: res})
}

type (
	ConflictResponse struct {
		Conflict bool `json:"conflict"`
	}

	EnrollRequest struct {
		StudentID string `json:"student_id" validate:"required"`
	}

	TemplateResponse struct {
		Template  schedule.Template     `json:"template"`
		Expansion schedule.ExpandResult `json:"expansion"`
	}

	DeletedResponse struct {
		Deleted int `json:"deleted"`
	}
)
