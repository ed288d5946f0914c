package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-portal/internal/availability"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/config"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/logging"
	"github.com/hackgods/clinic-portal/internal/notification"
	"github.com/hackgods/clinic-portal/internal/session"
	"github.com/hackgods/clinic-portal/internal/storeclient"
)

// app wires one portal session for the duration of a command.
type app struct {
	sess     session.Session
	client   *storeclient.Client
	cal      *calendar.Calendar
	resolver *availability.Resolver
	manager  *booking.Manager
	records  *booking.Records
	feed     *notification.Aggregator
	log      *logrus.Logger
}

func newApp() (*app, error) {
	cfg, err := config.LoadPortal()
	if err != nil {
		return nil, err
	}

	var sess session.Session
	if cfg.Token != "" {
		userID, err := uuid.Parse(cfg.UserID)
		if err != nil {
			return nil, fmt.Errorf("PORTAL_USER_ID must be a uuid: %w", err)
		}
		sess = session.New(cfg.Token, userID)
	}

	log := logging.New("dev")
	log.SetLevel(logrus.WarnLevel)
	log.SetOutput(os.Stderr)

	client := storeclient.New(cfg.APIURL, &http.Client{Timeout: cfg.Timeout})
	return buildApp(sess, client, calendar.Default(), log), nil
}

func buildApp(sess session.Session, client *storeclient.Client, cal *calendar.Calendar, log *logrus.Logger) *app {
	resolver := availability.NewResolver(client, cal)
	return &app{
		sess:     sess,
		client:   client,
		cal:      cal,
		resolver: resolver,
		manager:  booking.NewManager(client, resolver, cal, log),
		records:  booking.NewRecords(client, log),
		feed:     notification.NewAggregator(client, log),
		log:      log,
	}
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "portal",
		Short:         "Patient portal: book appointments, manage health records and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := newApp()
			if err != nil {
				return err
			}
			*a = *built
			return nil
		},
	}

	rootCmd.AddCommand(departmentsCmd(a))
	rootCmd.AddCommand(slotsCmd(a))
	rootCmd.AddCommand(bookCmd(a))
	rootCmd.AddCommand(appointmentsCmd(a))
	rootCmd.AddCommand(cancelCmd(a))
	rootCmd.AddCommand(deleteCmd(a))
	rootCmd.AddCommand(referralCmd(a))
	rootCmd.AddCommand(recordsCmd(a))
	rootCmd.AddCommand(addRecordCmd(a))
	rootCmd.AddCommand(deleteRecordCmd(a))
	rootCmd.AddCommand(notificationsCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		stop()
		os.Exit(1)
	}
}

// describe turns a core error into the message a patient sees.
func describe(err error) string {
	var conflict *booking.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Error() + "\nplease pick another slot"
	}

	switch fault.KindOf(err) {
	case fault.KindAuthRequired:
		return "please log in (set PORTAL_TOKEN and PORTAL_USER_ID): " + err.Error()
	case fault.KindUnavailable:
		return "the clinic service is unavailable, try again later: " + err.Error()
	default:
		return err.Error()
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fault.Invalid("id", "must be a uuid")
	}
	return id, nil
}
