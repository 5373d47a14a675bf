package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/smartlibrary/library/internal/auth"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/events"
	"github.com/smartlibrary/library/internal/metrics"
)

func newSweepCmd() *cobra.Command {
	var viaBroker bool
	var reason string

	cmd := &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark active loans past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if viaBroker {
				return requestSweep(cmd.Context(), e, reason)
			}

			publisher, err := connectPublisher(e)
			if err != nil {
				return err
			}
			if publisher != nil {
				defer publisher.Close()
			}
			m := metrics.New(prometheus.NewRegistry())
			dispatcher := newDispatcher(publisher, m, e.log)

			marked, err := newCirculation(e, dispatcher, m).SweepOverdue(cmd.Context())
			dispatcher.Wait()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d transaction(s) overdue\n", marked)
			return nil
		},
	}
	cmd.Flags().BoolVar(&viaBroker, "via-broker", false, "ask running servers to sweep through RabbitMQ instead of sweeping here")
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded on the sweep command")
	return cmd
}

// requestSweep publishes a sweep command for whichever server consumes it.
func requestSweep(ctx context.Context, e *env, reason string) error {
	if e.cfg.RabbitMQURL == "" {
		return errors.New("--via-broker requires RABBITMQ_URL")
	}
	publisher, err := events.NewAMQPPublisher(e.cfg.RabbitMQURL, e.log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	requestedBy, _ := os.Hostname()
	err = publisher.Publish(ctx, events.CommandSweepRequested, events.SweepRequest{
		RequestedBy: requestedBy,
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("publish sweep command: %w", err)
	}
	e.log.Info("Sweep command published", zap.String("reason", reason))
	return nil
}

func newCreateUserCmd() *cobra.Command {
	var in auth.CreateUserInput
	var role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff or member account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			in.Role = domain.Role(strings.ToLower(role))
			if in.Password == "" {
				if in.Password, err = readPassword(cmd); err != nil {
					return err
				}
			}

			service, err := auth.NewService(e.store, e.log, auth.Options{
				Secret: e.cfg.JWTSecret,
				Issuer: e.cfg.JWTIssuer,
				TTL:    e.cfg.TokenTTL(),
			})
			if err != nil {
				return fmt.Errorf("JWT_SECRET: %w", err)
			}

			user, err := service.CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "password, prompted for when omitted")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdmin), "admin, librarian or member")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
