package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	"github.com/trezcool/markit/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword       // mockable
	runMigrationFunc = database.RunMigration // mockable

	errHelp = errors.New("help provided")
)

type (
	reporter interface {
		MarksReport(w io.Writer, t task.Task, sheet marking.Sheet, summary marking.Summary) error
	}

	mirrorer interface {
		Mirror(ctx context.Context, job answer.MirrorJob) error
	}

	commandLine struct {
		db         *sql.DB
		usrRepo    user.Repository
		taskSvc    task.Service
		answerSvc  answer.Service
		markingSvc marking.Service
		mailSvc    core.EmailService
		reporter   reporter
		mirror     mirrorer
		out        io.Writer
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run a migration command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-admin]      - create or update an active user")
	fmt.Fprintln(cli.out, "  resetpassword -username NAME|EMAIL            - reset user's password")
	fmt.Fprintln(cli.out, "  importtask -file MANIFEST.yaml                - create a task with its questions and markers")
	fmt.Fprintln(cli.out, "  listbooks -task ID [-search KEY] [-sort FIELD] [-page N] [-size N]")
	fmt.Fprintln(cli.out, "                                                - list the answer books of a task")
	fmt.Fprintln(cli.out, "  mirror -task ID                               - copy the files of a task to the mirror")
	fmt.Fprintln(cli.out, "  sendreport -task ID -to EMAIL                 - email the marks report of a task")
}

// promptPassword reads a password from the terminal. Returns errHelp when empty.
func (cli *commandLine) promptPassword(usage func()) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's name. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's name or email. The password will be prompted next.")

	importTaskCmd := flag.NewFlagSet("importtask", flag.ExitOnError)
	importTaskFile := importTaskCmd.String("file", "", "The YAML manifest of the task.")

	listBooksCmd := flag.NewFlagSet("listbooks", flag.ExitOnError)
	listBooksTask := listBooksCmd.Int64("task", 0, "The task ID.")
	listBooksSearch := listBooksCmd.String("search", "", "Filter by student name, email or nickname.")
	listBooksSort := listBooksCmd.String("sort", "", "Sort field; prefix with - for descending order.")
	listBooksPage := listBooksCmd.Int("page", 1, "The page to show.")
	listBooksSize := listBooksCmd.Int("size", 0, "The page size.")

	mirrorCmd := flag.NewFlagSet("mirror", flag.ExitOnError)
	mirrorTask := mirrorCmd.Int64("task", 0, "The task ID.")

	sendReportCmd := flag.NewFlagSet("sendreport", flag.ExitOnError)
	sendReportTask := sendReportCmd.Int64("task", 0, "The task ID.")
	sendReportTo := sendReportCmd.String("to", "", "The recipient's email.")

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
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importtask":
		if err := importTaskCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importTaskFile == "" {
			importTaskCmd.Usage()
			return errHelp
		}
		return cli.importTask(*importTaskFile)

	case "listbooks":
		if err := listBooksCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *listBooksTask == 0 {
			listBooksCmd.Usage()
			return errHelp
		}
		return cli.listBooks(*listBooksTask, *listBooksSearch, *listBooksSort, *listBooksPage, *listBooksSize)

	case "mirror":
		if err := mirrorCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *mirrorTask == 0 {
			mirrorCmd.Usage()
			return errHelp
		}
		return cli.mirrorTask(*mirrorTask)

	case "sendreport":
		if err := sendReportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sendReportTask == 0 || *sendReportTo == "" {
			sendReportCmd.Usage()
			return errHelp
		}
		return cli.sendReport(*sendReportTask, *sendReportTo)

	default:
		cli.printUsage()
		return errHelp
	}
}
