package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
	"github.com/murilobento/studiofisiopilates-sub000/tests"
)

const pwd = "Str0ng&Secret"

var now = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	env        *testutil.Env
	srv        *Server
	admin      user.User
	instructor user.User
	inactive   user.User
	student    student.Student
}

func setup(t *testing.T) *apiFixture {
	env := testutil.NewEnv(t, now)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	billing.InitValidators(validate, translator, env.Conf.Billing.PaymentMethods)

	srv := NewServer(env.Conf, env.Logger, &Deps{
		Validate:    validate,
		Translator:  translator,
		Clock:       env.Clock,
		Location:    env.Conf.Location(),
		UserSvc:     env.Users,
		StudentSvc:  env.Students,
		ScheduleSvc: env.Schedule,
		PaymentSvc:  env.Payments,
		Generator:   env.Generator,
		Commissions: env.Commissions,
		FinanceSvc:  env.Finance,
	})

	f := &apiFixture{env: env, srv: srv}
	f.admin = testutil.CreateUser(t, env.Repos.Users, "Admin", "admin", "admin@studio.com", pwd, user.RoleAdmin, true, nil)
	f.instructor = testutil.CreateUser(t, env.Repos.Users, "Ana", "ana", "ana@studio.com", pwd, user.RoleInstructor, true, testutil.Rate("20"))
	f.inactive = testutil.CreateUser(t, env.Repos.Users, "Bia", "bia", "bia@studio.com", pwd, user.RoleInstructor, false, nil)
	plan := testutil.CreatePlan(t, env.Repos.Students, "Monthly", "200")
	f.student = testutil.CreateStudent(t, env.Repos.Students, "Carla", plan.ID, f.instructor.ID, student.StatusActive, nil)
	return f
}

func (f *apiFixture) token(t *testing.T, usr user.User) string {
	token, err := f.srv.auth.Token(usr)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantErr  string
}

func (tt httpTest) run(t *testing.T, f *apiFixture) *httptest.ResponseRecorder {
	rec := f.do(tt.method, tt.path, tt.body, tt.token)
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantErr != "" {
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
		assert.Equal(t, tt.wantErr, data["error"])
	}
	return rec
}

func TestLogin(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{name: "wrong password", body: LoginRequest{Username: "admin", Password: "nope"}, wantCode: http.StatusBadRequest, wantErr: "authentication failed"},
		{name: "unknown user", body: LoginRequest{Username: "ghost", Password: pwd}, wantCode: http.StatusBadRequest, wantErr: "authentication failed"},
		{name: "inactive", body: LoginRequest{Username: "bia", Password: pwd}, wantCode: http.StatusForbidden, wantErr: "account deactivated"},
		{name: "by email", body: LoginRequest{Username: "ADMIN@studio.com", Password: pwd}, wantCode: http.StatusOK},
		{name: "by username", body: LoginRequest{Username: "ana", Password: pwd}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/users/login"
			rec := tt.run(t, f)
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestMe(t *testing.T) {
	f := setup(t)

	httpTest{name: "no token", method: http.MethodGet, path: "/v1/users/me", wantCode: http.StatusUnauthorized}.run(t, f)

	rec := httpTest{method: http.MethodGet, path: "/v1/users/me", token: f.token(t, f.instructor), wantCode: http.StatusOK}.run(t, f)
	var resp MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, f.instructor.ID, resp.User.ID)
	assert.True(t, resp.Capabilities.ManageSchedule)
	assert.False(t, resp.Capabilities.EditPayment)

	// capabilities follow the stored user, not the token
	token := f.token(t, f.instructor)
	f.instructor.IsActive = false
	_, err := f.env.Repos.Users.UpdateUser(context.Background(), f.instructor)
	require.NoError(t, err)
	httpTest{method: http.MethodGet, path: "/v1/users/me", token: token, wantCode: http.StatusForbidden, wantErr: "account deactivated"}.run(t, f)
}

func TestCapabilities(t *testing.T) {
	f := setup(t)
	admin, instructor := f.token(t, f.admin), f.token(t, f.instructor)

	tests := []httpTest{
		{name: "instructor on finance", method: http.MethodGet, path: "/v1/finance/history", token: instructor, wantCode: http.StatusForbidden, wantErr: "permission denied"},
		{name: "instructor generating", method: http.MethodPost, path: "/v1/payments/generate", body: GenerateRequest{}, token: instructor, wantCode: http.StatusForbidden},
		{name: "instructor creating users", method: http.MethodGet, path: "/v1/users", token: instructor, wantCode: http.StatusForbidden},
		{name: "admin on finance", method: http.MethodGet, path: "/v1/finance/history", token: admin, wantCode: http.StatusOK},
		{name: "history out of range", method: http.MethodGet, path: "/v1/finance/history?months=30", token: admin, wantCode: http.StatusBadRequest},
		{name: "projection", method: http.MethodGet, path: "/v1/finance/projection?months=3", token: admin, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.runner(f))
	}
}

func (tt httpTest) runner(f *apiFixture) func(t *testing.T) {
	return func(t *testing.T) { tt.run(t, f) }
}

func TestPayments(t *testing.T) {
	f := setup(t)
	admin := f.token(t, f.admin)

	t.Run("generate another period", httpTest{
		method: http.MethodPost, path: "/v1/payments/generate", body: GenerateRequest{Month: 2, Year: 2024},
		token: admin, wantCode: http.StatusBadRequest,
	}.runner(f))

	rec := httpTest{method: http.MethodPost, path: "/v1/payments/generate", body: GenerateRequest{}, token: admin, wantCode: http.StatusOK}.run(t, f)
	var res billing.GenerateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Created, 1)
	paymentID := res.Created[0].ID

	rec = httpTest{method: http.MethodPost, path: "/v1/payments/generate", body: GenerateRequest{Month: 3, Year: 2024}, token: admin, wantCode: http.StatusOK}.run(t, f)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Created)
	assert.Equal(t, 1, res.AlreadyExists)

	process := fmt.Sprintf("/v1/payments/%s/process", paymentID)
	tests := []httpTest{
		{name: "unknown payment", method: http.MethodGet, path: "/v1/payments/nope", token: admin, wantCode: http.StatusNotFound},
		{name: "unsupported method", method: http.MethodPost, path: process, body: billing.ProcessPayment{PaymentMethod: "bitcoin"}, token: admin, wantCode: http.StatusBadRequest},
		{name: "instructor processing", method: http.MethodPost, path: process, body: billing.ProcessPayment{PaymentMethod: "pix"}, token: f.token(t, f.instructor), wantCode: http.StatusForbidden},
		{name: "process", method: http.MethodPost, path: process, body: billing.ProcessPayment{PaymentMethod: "pix"}, token: admin, wantCode: http.StatusOK},
		{name: "process twice", method: http.MethodPost, path: process, body: billing.ProcessPayment{PaymentMethod: "pix"}, token: admin, wantCode: http.StatusConflict},
		{name: "cancel paid without force", method: http.MethodPost, path: fmt.Sprintf("/v1/payments/%s/cancel", paymentID), body: billing.CancelPayment{}, token: admin, wantCode: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.runner(f))
	}

	// instructors only see their own students' payments
	rec = httpTest{method: http.MethodGet, path: "/v1/payments", token: f.token(t, f.instructor), wantCode: http.StatusOK}.run(t, f)
	var views []billing.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, billing.StatusPaid, views[0].Status)

	other := testutil.CreateUser(t, f.env.Repos.Users, "Duda", "duda", "duda@studio.com", pwd, user.RoleInstructor, true, nil)
	rec = httpTest{method: http.MethodGet, path: "/v1/payments", token: f.token(t, other), wantCode: http.StatusOK}.run(t, f)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Empty(t, views)
	httpTest{method: http.MethodGet, path: "/v1/payments/" + paymentID, token: f.token(t, other), wantCode: http.StatusNotFound}.run(t, f)
}

func TestClasses(t *testing.T) {
	f := setup(t)
	instructor := f.token(t, f.instructor)

	start := time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)
	newClass := func(offset time.Duration) map[string]interface{} {
		return map[string]interface{}{
			"title":         "Pilates",
			"instructor_id": f.admin.ID, // ignored: instructors book for themselves
			"start_time":    start.Add(offset),
			"end_time":      start.Add(offset + time.Hour),
			"max_students":  3,
		}
	}

	httpTest{method: http.MethodPost, path: "/v1/classes", body: newClass(0), token: instructor, wantCode: http.StatusCreated}.run(t, f)

	tests := []httpTest{
		{name: "overlapping", method: http.MethodPost, path: "/v1/classes", body: newClass(30 * time.Minute), token: instructor, wantCode: http.StatusConflict},
		{name: "touching", method: http.MethodPost, path: "/v1/classes", body: newClass(time.Hour), token: instructor, wantCode: http.StatusCreated},
		{name: "missing title", method: http.MethodPost, path: "/v1/classes", body: map[string]interface{}{"max_students": 1}, token: instructor, wantCode: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/v1/classes", body: "{", token: instructor, wantCode: http.StatusBadRequest},
		{name: "conflict check", method: http.MethodGet, path: fmt.Sprintf("/v1/classes/conflicts?instructor_id=%s&start=%s&end=%s",
			f.instructor.ID, start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339)), token: instructor, wantCode: http.StatusOK},
		{name: "conflict check without range", method: http.MethodGet, path: "/v1/classes/conflicts", token: instructor, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.runner(f))
	}

	classes, err := f.env.Schedule.QueryClasses(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	for _, cls := range classes {
		assert.Equal(t, f.instructor.ID, cls.InstructorID)
	}
}

func TestTemplates(t *testing.T) {
	f := setup(t)
	instructor := f.token(t, f.instructor)

	newTemplate := func(day int, startDate, endDate interface{}) map[string]interface{} {
		return map[string]interface{}{
			"title":        "Pilates",
			"day_of_week":  day,
			"start_time":   "09:00",
			"end_time":     "10:00",
			"start_date":   startDate,
			"end_date":     endDate,
			"max_students": 3,
		}
	}

	rec := httpTest{method: http.MethodPost, path: "/v1/templates", body: newTemplate(2, "2024-03-01", "2024-03-31"), token: instructor, wantCode: http.StatusCreated}.run(t, f)
	var resp TemplateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, f.instructor.ID, resp.Template.InstructorID)
	require.NotNil(t, resp.Template.EndDate)
	assert.Equal(t, 31, resp.Template.EndDate.Day())
	require.Len(t, resp.Expansion.Created, 4) // tuesdays 5, 12, 19, 26
	assert.Equal(t, time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC), resp.Expansion.Created[0].StartTime.UTC())

	tests := []httpTest{
		{name: "timestamps", method: http.MethodPost, path: "/v1/templates", body: newTemplate(4, "2024-03-01T00:00:00Z", nil), token: instructor, wantCode: http.StatusCreated},
		{name: "bad date", method: http.MethodPost, path: "/v1/templates", body: newTemplate(5, "01/03/2024", nil), token: instructor, wantCode: http.StatusBadRequest},
		{name: "end before start", method: http.MethodPost, path: "/v1/templates", body: newTemplate(5, "2024-03-10", "2024-03-01"), token: instructor, wantCode: http.StatusBadRequest},
		{name: "update with plain dates", method: http.MethodPut, path: "/v1/templates/" + resp.Template.ID, body: newTemplate(2, "2024-03-01", "2024-04-30"), token: instructor, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.runner(f))
	}

	tpl, err := f.env.Schedule.GetTemplate(context.Background(), resp.Template.ID)
	require.NoError(t, err)
	require.NotNil(t, tpl.EndDate)
	assert.Equal(t, time.April, tpl.EndDate.Month())
}
