/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/auth"
	"github.com/hrease/apiserver/internal/db"
	"github.com/hrease/apiserver/internal/services"
	"github.com/hrease/apiserver/internal/store"
	"github.com/hrease/apiserver/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var newUserFlags struct {
	email      string
	password   string
	firstName  string
	lastName   string
	jobTitle   string
	department string
	hireDate   string
	staff      bool
	superuser  bool
}

// createUserCmd provisions an account. Without --password the account gets an
// unusable password and the employee sets one through the reset flow.
var createUserCmd = &cobra.Command{
	Use:   "createuser",
	Short: "Create an employee or admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()

		logger, flush, err := newLogger(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer flush()

		var hireDate types.Date
		if s := strings.TrimSpace(newUserFlags.hireDate); s != "" {
			hireDate, err = types.ParseDate(s)
			if err != nil {
				return fmt.Errorf("--hire-date must be YYYY-MM-DD: %w", err)
			}
		}

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		users := services.NewUserService(store.NewUserRepository(dbConn), auth.NewPasswordHasher(bcrypt.DefaultCost))
		user, err := users.Create(ctx, services.NewUser{
			Email:       newUserFlags.email,
			Password:    newUserFlags.password,
			FirstName:   newUserFlags.firstName,
			LastName:    newUserFlags.lastName,
			JobTitle:    newUserFlags.jobTitle,
			Department:  newUserFlags.department,
			HireDate:    hireDate,
			IsStaff:     newUserFlags.staff || newUserFlags.superuser,
			IsSuperuser: newUserFlags.superuser,
		})
		if err != nil {
			if svcErr, ok := services.AsError(err); ok {
				for field, problems := range svcErr.Fields {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, strings.Join(problems, " "))
				}
			}
			return err
		}

		logger.Info("user created",
			zap.Int64("user_id", user.ID),
			zap.String("email", user.Email),
			zap.Bool("is_staff", user.IsStaff),
			zap.Bool("is_superuser", user.IsSuperuser),
			zap.Bool("usable_password", auth.IsUsablePassword(user.PasswordHash)),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createUserCmd)

	flags := createUserCmd.Flags()
	flags.StringVar(&newUserFlags.email, "email", "", "login email (required)")
	flags.StringVar(&newUserFlags.password, "password", "", "initial password; omit to require a reset")
	flags.StringVar(&newUserFlags.firstName, "first-name", "", "first name")
	flags.StringVar(&newUserFlags.lastName, "last-name", "", "last name")
	flags.StringVar(&newUserFlags.jobTitle, "job-title", "", "job title")
	flags.StringVar(&newUserFlags.department, "department", "", "department")
	flags.StringVar(&newUserFlags.hireDate, "hire-date", "", "hire date (YYYY-MM-DD)")
	flags.BoolVar(&newUserFlags.staff, "staff", false, "grant admin site access")
	flags.BoolVar(&newUserFlags.superuser, "superuser", false, "grant all permissions (implies --staff)")
	_ = createUserCmd.MarkFlagRequired("email")
}
