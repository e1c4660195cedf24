package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/rolestore"
	"github.com/trezcool/college/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	usrRepo    user.Repository
	usrSvc     *user.Service
	roles      rolestore.Writer
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -name NAME -email EMAIL [-role ROLE] - create a user (or update it); the password is prompted")
	fmt.Println("  setrole -email EMAIL -role ROLE [-raw]      - set the role of a user; -raw stores the value as is")
	fmt.Println("  setrole -email EMAIL -clear                 - remove the role record of a user")
	fmt.Println("  resetpassword -email EMAIL                  - reset a user's password; the password is prompted")
	fmt.Println("  migrate COMMAND [ARGS...]                   - run a database migration command (up, down, status, ...)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", "", "One of: principal, admin, front_office. No role record when empty.")

	setRoleCmd := flag.NewFlagSet("setrole", flag.ContinueOnError)
	setRoleEmail := setRoleCmd.String("email", "", "The user's email.")
	setRoleRole := setRoleCmd.String("role", "", "One of: principal, admin, front_office.")
	setRoleRaw := setRoleCmd.Bool("raw", false, "Store the role value verbatim, without normalizing it.")
	setRoleClear := setRoleCmd.Bool("clear", false, "Remove the role record instead.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserRole)

	case "setrole":
		if err := setRoleCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *setRoleEmail == "" || (*setRoleRole == "") == !*setRoleClear {
			setRoleCmd.Usage()
			return errHelp
		}
		if *setRoleClear {
			return cli.clearRole(*setRoleEmail)
		}
		return cli.setRole(*setRoleEmail, *setRoleRole, *setRoleRaw)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

// describe renders validation failures field by field.
func (cli *commandLine) describe(err error) string {
	var fields map[string]string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		fields = core.TranslateErrors(e, cli.translator)
	case *core.ValidationError:
		if len(e.Fields) == 0 {
			return e.Error()
		}
		fields = make(map[string]string, len(e.Fields))
		for _, f := range e.Fields {
			fields[f.Field] = f.Error
		}
	default:
		return err.Error()
	}

	lines := make([]string, 0, len(fields))
	for fld, msg := range fields {
		lines = append(lines, fmt.Sprintf("%s: %s", fld, msg))
	}
	sort.Strings(lines)
	return strings.Join(lines, "; ")
}
