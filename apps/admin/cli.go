package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/elearning/core/attempt"
	"github.com/trezcool/elearning/core/flashcard"
	"github.com/trezcool/elearning/core/question"
	"github.com/trezcool/elearning/core/test"
	"github.com/trezcool/elearning/core/topic"
	"github.com/trezcool/elearning/core/user"
	"github.com/trezcool/elearning/storage/database"
)

var (
	readPasswordFunc = func() ([]byte, error) { return term.ReadPassword(int(syscall.Stdin)) } // mockable
	gooseRunFunc     = database.Migrate                                                      // mockable

	errHelp = errors.New("help provided")
)

// Dependencies are bound to every command's Run method.
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	DB       *sql.DB
	Validate *validator.Validate

	Users      user.Repository
	Topics     *topic.Service
	Questions  *question.Service
	Tests      *test.Service
	Flashcards *flashcard.Service
	Attempts   *attempt.Service
}

// CLI lists the admin commands.
type CLI struct {
	Migrate       MigrateCmd       `cmd:"" help:"Run a database migration command (up, down, status, ...)"`
	AddUser       AddUserCmd       `cmd:"" name:"adduser" help:"Create a user or update an existing one. The password is prompted."`
	ResetPassword ResetPasswordCmd `cmd:"" name:"resetpassword" help:"Reset a user's password. The password is prompted."`
	Import        ImportCmd        `cmd:"" help:"Import topics, questions, tests and flashcards from a YAML file"`
	GradePending  GradePendingCmd  `cmd:"" name:"grade-pending" help:"Re-run AI grading on the attempts waiting for manual grading"`
}

func newParser(cli *CLI, deps *Dependencies) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("admin"),
		kong.Description("E-Learning administration commands."),
		kong.Writers(deps.Stdout, deps.Stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
}

// run parses args (without the program name) and runs the selected command.
func run(deps *Dependencies, args []string) error {
	cli := &CLI{}
	parser, err := newParser(cli, deps)
	if err != nil {
		return fmt.Errorf("creating parser: %w", err)
	}

	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return errHelp
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run(deps)
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(deps *Dependencies) (string, error) {
	fmt.Fprint(deps.Stdout, "Enter password:")
	pwd, err := readPasswordFunc()
	fmt.Fprintln(deps.Stdout)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errors.New("password cannot be empty")
	}
	return string(pwd), nil
}
