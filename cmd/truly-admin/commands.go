package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/lock"
	"github.com/prn-tf/truly/internal/logging"
	"github.com/prn-tf/truly/internal/mail"
	"github.com/prn-tf/truly/internal/pkg/crypto"
	"github.com/prn-tf/truly/internal/repository/factory"
	"github.com/prn-tf/truly/internal/service"
)

const commandTimeout = 30 * time.Second

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "truly-admin",
		Short:         "Administrative commands for Truly",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and manage users",
	}

	showCmd := &cobra.Command{
		Use:   "show <username|email>",
		Short: "Show a user and their messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, configPath, func(ctx context.Context, svc *service.UserService) error {
				user, err := svc.GetByIdentifier(ctx, args[0])
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <username>",
		Short: "Mark a user's email as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd, configPath, func(ctx context.Context, svc *service.UserService) error {
				if err := svc.ForceVerify(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s verified\n", args[0])
				return nil
			})
		},
	}

	acceptCmd := &cobra.Command{
		Use:   "accept <username> <true|false>",
		Short: "Open or close a user's message intake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accepting, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: expected true or false", args[1])
			}
			return withUserService(cmd, configPath, func(ctx context.Context, svc *service.UserService) error {
				if err := svc.SetAcceptingMessages(ctx, args[0], accepting); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s accepting messages: %t\n", args[0], accepting)
				return nil
			})
		},
	}

	userCmd.AddCommand(showCmd, verifyCmd, acceptCmd)

	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a random session signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := crypto.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Truly Admin CLI\n")
			fmt.Fprintf(out, "Version: %s\n", Version)
			fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		},
	}

	rootCmd.AddCommand(userCmd, secretCmd, versionCmd)
	return rootCmd
}

// withUserService opens the configured store and runs fn against it.
// Admin operations never send mail or contend for sign-up locks, so only the
// database and logging settings need to be valid.
func withUserService(cmd *cobra.Command, configPath string, fn func(ctx context.Context, svc *service.UserService) error) error {
	cfg, err := config.LoadForStore(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closer.Close()
	logger = logger.Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	store, err := factory.Open(ctx, cfg.Database, factory.Options{}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.NewUserService(store.Users, lock.NewNoOpLocker(), mail.NewLogSender(logger), service.UserServiceConfig{
		VerifyCodeTTL: cfg.Auth.VerifyCodeTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		SignUpLockTTL: cfg.Auth.SignUpLockTTL,
	}, nil, logger)

	return fn(ctx, svc)
}

func printUser(out io.Writer, user *domain.User) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", user.ID)
	fmt.Fprintf(tw, "Username:\t%s\n", user.Username)
	fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
	fmt.Fprintf(tw, "Verified:\t%t\n", user.IsVerified)
	fmt.Fprintf(tw, "Accepting messages:\t%t\n", user.IsAcceptingMessages)
	fmt.Fprintf(tw, "Created:\t%s\n", user.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Messages:\t%d\n", len(user.Messages))
	_ = tw.Flush()

	for _, m := range user.Messages {
		// Content comes from anonymous senders; quoting keeps control sequences off the terminal.
		fmt.Fprintf(out, "  [%s] %q\n", m.CreatedAt.Format(time.RFC3339), m.Content)
	}
}
