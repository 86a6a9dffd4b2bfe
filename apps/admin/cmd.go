package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp             = errors.New("help provided")
	errPasswordMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	db         *sql.DB
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	persona.InitValidators(validate, translator)
	return validate, translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, redo, reset, up-to, down-to...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-role admin|teacher|student] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name. Defaults to the username, or else the email.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", roleAdmin, "One of admin, teacher or student. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

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
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		name := *addUserName
		if name == "" {
			name = *addUserUname
		}
		if name == "" {
			name = *addUserEmail
		}
		return cli.addUser(name, *addUserUname, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

// promptPassword reads a password from the terminal, twice when confirm is set.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if !confirm || len(pwd) == 0 {
		return string(pwd), nil
	}

	fmt.Print("Confirm password:")
	again, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(again) != string(pwd) {
		return "", errPasswordMismatch
	}
	return string(pwd), nil
}

// explain turns validation errors into a one-line, human readable error.
func (cli *commandLine) explain(err error) error {
	verrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": "+fe.Translate(cli.translator))
	}
	return errors.New(strings.Join(msgs, "; "))
}
