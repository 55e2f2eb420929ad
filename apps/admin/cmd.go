package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/murilobento/studiofisiopilates-sub000/core"
	"github.com/murilobento/studiofisiopilates-sub000/core/billing"
	"github.com/murilobento/studiofisiopilates-sub000/core/finance"
	"github.com/murilobento/studiofisiopilates-sub000/core/schedule"
	"github.com/murilobento/studiofisiopilates-sub000/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	clock     core.Clock
	validate  *validator.Validate
	openDB    func() (*sql.DB, func() error, error)
	users     *user.Service
	schedule  *schedule.Service
	generator *billing.Generator
	finance   *finance.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a migration command (up, down, status, version, redo...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME [-email EMAIL] [-role ROLE] [-rate RATE] - create a user")
	fmt.Fprintln(cli.out, "  generate-payments [-month M -year Y] - create the missing payments of the current period")
	fmt.Fprintln(cli.out, "  expand-templates - expand every active recurring template")
	fmt.Fprintln(cli.out, "  project [-history N] [-months N] - project income and expenses")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", string(user.RoleAdmin), "The user's role (admin|instructor).")
	addUserRate := addUserCmd.String("rate", "", "The instructor's commission rate, in percent.")

	generateCmd := flag.NewFlagSet("generate-payments", flag.ExitOnError)
	generateMonth := generateCmd.Int("month", 0, "The billed month (1-12). Defaults to the current month.")
	generateYear := generateCmd.Int("year", 0, "The billed year. Defaults to the current year.")

	projectCmd := flag.NewFlagSet("project", flag.ExitOnError)
	projectHistory := projectCmd.Int("history", 6, "Number of complete past months to learn from.")
	projectMonths := projectCmd.Int("months", 3, "Number of months to project.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, *addUserRole, *addUserRate, string(pwd))
	case "generate-payments":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.generatePayments(*generateMonth, *generateYear)
	case "expand-templates":
		return cli.expandTemplates()
	case "project":
		if err := projectCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.project(*projectHistory, *projectMonths)
	default:
		cli.printUsage()
		return errHelp
	}
}
