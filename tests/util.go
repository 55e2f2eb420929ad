package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/student"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
	appfs "github.com/murilobento/studiofisiopilates-sub000/fs"
	emailsvc "github.com/murilobento/studiofisiopilates-sub000/services/email"
	logsvc "github.com/murilobento/studiofisiopilates-sub000/services/logger"
	"github.com/murilobento/studiofisiopilates-sub000/storage/database"
)

// Clock is a settable core.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "Studio",
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		SecretKey: "secret",
		Timezone:  "UTC",
		Server: core.ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: core.DatabaseConfig{Driver: database.DriverMemory},
		Schedule: core.ScheduleConfig{ConflictPolicy: string(schedule.ConflictIgnore), HorizonMonths: 3},
		Billing:  core.BillingConfig{PaymentMethods: []string{"cash", "pix", "credit_card"}},
	}
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}

// Env is every service wired on a fresh in-memory store.
type Env struct {
	Conf   *core.Config
	Clock  *Clock
	Repos  *database.Repositories
	Mailer *emailsvc.ConsoleService
	Logger core.Logger

	Users       *user.Service
	Students    *student.Service
	Schedule    *schedule.Service
	Payments    *billing.Service
	Generator   *billing.Generator
	Commissions *billing.CommissionCalculator
	Finance     *finance.Service
}

// NewEnv builds an Env whose clock reads now. Options may adjust the config before wiring.
func NewEnv(t *testing.T, now time.Time, opts ...func(conf *core.Config)) *Env {
	conf := NewConfig()
	for _, opt := range opts {
		opt(conf)
	}
	expandConf, err := schedule.NewExpandConfig(conf)
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	env := &Env{
		Conf:   conf,
		Clock:  NewClock(now),
		Repos:  database.MemoryRepositories(),
		Logger: NewLogger(conf),
	}
	if err := core.ParseEmailTemplates(appfs.FS, conf, env.Logger); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	env.Mailer = emailsvc.NewConsoleServiceMock(conf, env.Logger)

	repos := env.Repos
	env.Users = user.NewService(repos.Users, env.Clock)
	env.Students = student.NewService(repos.Students, env.Clock)
	env.Schedule = schedule.NewService(repos.Schedule, repos.Tx, env.Users, env.Students, env.Clock, expandConf, env.Logger)
	env.Finance = finance.NewService(repos.Finance, repos.Tx, env.Clock)
	env.Commissions = billing.NewCommissionCalculator(repos.Billing, repos.Tx, env.Finance, env.Users, env.Clock)
	receipts := billing.NewReceiptMailer(env.Students, env.Mailer, conf.Location())
	env.Payments = billing.NewService(repos.Billing, repos.Tx, env.Finance, env.Students, env.Clock, env.Logger, env.Commissions, receipts)
	env.Generator = billing.NewGenerator(repos.Billing, repos.Tx, env.Students, env.Clock, env.Logger)
	return env
}

func Rate(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role user.Role,
	isActive bool,
	commissionRate *decimal.Decimal,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:           name,
		Username:       uname,
		Email:          email,
		Role:           role,
		IsActive:       isActive,
		CommissionRate: commissionRate,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreatePlan(t *testing.T, repo student.Repository, name, price string) student.Plan {
	now := time.Now().UTC()
	plan, err := repo.CreatePlan(context.Background(), student.Plan{
		Name:      name,
		Price:     decimal.RequireFromString(price),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	return plan
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	name, planID, instructorID string,
	status student.Status,
	customPrice *decimal.Decimal,
) student.Student {
	now := time.Now().UTC()
	st, err := repo.CreateStudent(context.Background(), student.Student{
		Name:         name,
		Email:        "",
		Status:       status,
		PlanID:       planID,
		CustomPrice:  customPrice,
		InstructorID: instructorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}
