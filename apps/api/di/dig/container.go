package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/murilobento/studiofisiopilates-sub000/apps/api/echo"
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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Services groups the core services for commands that run them without the API.
type Services struct {
	dig.In
	Users       *user.Service
	Students    *student.Service
	Schedule    *schedule.Service
	Payments    *billing.Service
	Generator   *billing.Generator
	Commissions *billing.CommissionCalculator
	Finance     *finance.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newClock(conf *core.Config) core.Clock {
	return core.SystemClock(conf.Location())
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) *database.Repositories {
	repos, err := database.NewRepositories(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return repos
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if err := core.ParseEmailTemplates(appfs.FS, conf, logger); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(conf *core.Config, translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	billing.InitValidators(validate, translator, conf.Billing.PaymentMethods)
	return validate
}

func newUserService(repos *database.Repositories, clock core.Clock) *user.Service {
	return user.NewService(repos.Users, clock)
}

func newStudentService(repos *database.Repositories, clock core.Clock) *student.Service {
	return student.NewService(repos.Students, clock)
}

func newScheduleService(
	conf *core.Config,
	repos *database.Repositories,
	users *user.Service,
	students *student.Service,
	clock core.Clock,
	logger core.Logger,
) (*schedule.Service, error) {
	expandConf, err := schedule.NewExpandConfig(conf)
	if err != nil {
		return nil, errors.Wrap(err, "loading schedule config")
	}
	return schedule.NewService(repos.Schedule, repos.Tx, users, students, clock, expandConf, logger), nil
}

func newFinanceService(repos *database.Repositories, clock core.Clock) *finance.Service {
	return finance.NewService(repos.Finance, repos.Tx, clock)
}

func newCommissionCalculator(
	repos *database.Repositories,
	ledger *finance.Service,
	users *user.Service,
	clock core.Clock,
) *billing.CommissionCalculator {
	return billing.NewCommissionCalculator(repos.Billing, repos.Tx, ledger, users, clock)
}

func newPaymentService(
	conf *core.Config,
	repos *database.Repositories,
	ledger *finance.Service,
	students *student.Service,
	commissions *billing.CommissionCalculator,
	mailer core.EmailService,
	clock core.Clock,
	logger core.Logger,
) *billing.Service {
	receipts := billing.NewReceiptMailer(students, mailer, conf.Location())
	return billing.NewService(repos.Billing, repos.Tx, ledger, students, clock, logger, commissions, receipts)
}

func newGenerator(repos *database.Repositories, students *student.Service, clock core.Clock, logger core.Logger) *billing.Generator {
	return billing.NewGenerator(repos.Billing, repos.Tx, students, clock, logger)
}

type serverParams struct {
	dig.In
	Services
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Clock      core.Clock
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf, p.Logger, &echoapi.Deps{
		Validate:    p.Validate,
		Translator:  p.Translator,
		Clock:       p.Clock,
		Location:    p.Conf.Location(),
		UserSvc:     p.Users,
		StudentSvc:  p.Students,
		ScheduleSvc: p.Schedule,
		PaymentSvc:  p.Payments,
		Generator:   p.Generator,
		Commissions: p.Commissions,
		FinanceSvc:  p.Finance,
	})
}

// New returns a new dependency injection dig.Container.
// newConfig defaults to core.NewConfig.
func New(newConfig ...func() *core.Config) *dig.Container {
	c := dig.New()

	provideConfig := core.NewConfig
	if len(newConfig) > 0 {
		provideConfig = newConfig[0]
	}
	must(c.Provide(provideConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newClock))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newUserService))
	must(c.Provide(newStudentService))
	must(c.Provide(newScheduleService))
	must(c.Provide(newFinanceService))
	must(c.Provide(newCommissionCalculator))
	must(c.Provide(newPaymentService))
	must(c.Provide(newGenerator))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
