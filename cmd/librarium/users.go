package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bigkaa/librarium/internal/database"
	"github.com/bigkaa/librarium/internal/repository"
	"github.com/bigkaa/librarium/internal/service"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account administration",
	}

	var in service.SignUpInput
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an approved ADMIN account",
		Long: "Create an approved ADMIN account. The password is read from the\n" +
			"terminal without echo, or from the first line of stdin when it is not a terminal.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			password, err := readPassword(cmd.ErrOrStderr(), cmd.InOrStdin(), "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			in.Password = password

			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			// Admin creation neither issues tokens nor sends mail.
			users := service.NewUserService(repository.NewTxRunner(pool), nil, nil, logger)
			user, err := users.CreateAdmin(ctx, in)
			if err != nil {
				return err
			}
			logger.Info("Admin created",
				slog.String("user_id", user.ID),
				slog.String("email", user.Email),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	f := createAdmin.Flags()
	f.StringVar(&in.FullName, "name", "", "full name")
	f.StringVar(&in.Email, "email", "", "email address")
	f.IntVar(&in.UniversityID, "university-id", 0, "university id number")
	f.StringVar(&in.UniversityCard, "university-card", "none", "university card URL")
	_ = createAdmin.MarkFlagRequired("name")
	_ = createAdmin.MarkFlagRequired("email")
	_ = createAdmin.MarkFlagRequired("university-id")

	cmd.AddCommand(createAdmin)
	return cmd
}

// readPassword reads a password without echo from a terminal, or one line
// from in otherwise.
func readPassword(prompt io.Writer, in io.Reader, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
