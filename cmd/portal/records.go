package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-portal/internal/api"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/notification"
)

func recordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "records",
		Short: "List your health records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.records.List(cmd.Context(), a.sess)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no health records")
				return nil
			}
			for _, r := range list {
				fmt.Fprintf(out, "%s  %s", r.ID, calendar.DisplayDate(r.Date))
				if r.Weight != nil {
					fmt.Fprintf(out, "  weight=%.1fkg", *r.Weight)
				}
				if r.Height != nil {
					fmt.Fprintf(out, "  height=%.1fcm", *r.Height)
				}
				if r.BloodPressure != nil {
					fmt.Fprintf(out, "  bp=%s", *r.BloodPressure)
				}
				if r.HeartRate != nil {
					fmt.Fprintf(out, "  hr=%d", *r.HeartRate)
				}
				if r.Diagnosis != nil {
					fmt.Fprintf(out, "  diagnosis=%q", *r.Diagnosis)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func addRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-record",
		Short: "Add a health record",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDate, _ := cmd.Flags().GetString("date")
			date, err := time.Parse(api.RecordDateLayout, rawDate)
			if err != nil {
				return fault.Invalid("date", "must be YYYY-MM-DD")
			}

			in := booking.RecordInput{Date: date}
			flags := cmd.Flags()
			if flags.Changed("weight") {
				v, _ := flags.GetFloat64("weight")
				in.Weight = &v
			}
			if flags.Changed("height") {
				v, _ := flags.GetFloat64("height")
				in.Height = &v
			}
			if flags.Changed("bp") {
				v, _ := flags.GetString("bp")
				in.BloodPressure = &v
			}
			if flags.Changed("heart-rate") {
				v, _ := flags.GetInt("heart-rate")
				in.HeartRate = &v
			}
			if flags.Changed("diagnosis") {
				v, _ := flags.GetString("diagnosis")
				in.Diagnosis = &v
			}
			if flags.Changed("notes") {
				v, _ := flags.GetString("notes")
				in.Notes = &v
			}

			rec, err := a.records.Create(cmd.Context(), a.sess, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added health record %s for %s\n", rec.ID, calendar.DisplayDate(rec.Date))
			return nil
		},
	}
	cmd.Flags().String("date", time.Now().Format(api.RecordDateLayout), "Date as YYYY-MM-DD")
	cmd.Flags().Float64("weight", 0, "Weight in kg")
	cmd.Flags().Float64("height", 0, "Height in cm")
	cmd.Flags().String("bp", "", "Blood pressure, e.g. 120/80")
	cmd.Flags().Int("heart-rate", 0, "Heart rate in bpm")
	cmd.Flags().String("diagnosis", "", "Diagnosis")
	cmd.Flags().String("notes", "", "Notes")
	return cmd
}

func deleteRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-record <record-id>",
		Short: "Delete a health record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.records.Delete(cmd.Context(), a.sess, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "health record deleted, %d remaining\n", len(a.records.Current()))
			return nil
		},
	}
}

func notificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show the notification feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			markRead, _ := cmd.Flags().GetBool("mark-read")
			watch, _ := cmd.Flags().GetDuration("watch")

			if err := a.sess.Require(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("watch") {
				if watch <= 0 {
					return fault.Invalid("watch", "must be a positive interval, e.g. 30s")
				}
				err := a.feed.Poll(cmd.Context(), a.sess, watch, func(items []notification.Item) {
					fmt.Fprintf(out, "-- %s\n", time.Now().Format(time.Kitchen))
					printFeed(out, items)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			if err := a.feed.SessionChanged(cmd.Context(), a.sess); err != nil {
				return err
			}

			items := a.feed.Feed()
			printFeed(out, items)
			if markRead && len(items) > 0 {
				if err := a.feed.Open(cmd.Context(), a.sess); err != nil {
					return err
				}
				fmt.Fprintln(out, "marked as read")
			}
			return nil
		},
	}
	cmd.Flags().Bool("mark-read", false, "Mark the shown notifications as read")
	cmd.Flags().Duration("watch", 0, "Keep refreshing the feed at this interval until interrupted")
	return cmd
}

func printFeed(out io.Writer, items []notification.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no notifications")
		return
	}
	for _, it := range items {
		marker := " "
		if !it.Read {
			marker = "*"
		}
		label := "appointment"
		if it.Kind == notification.KindHealthRecord {
			label = "record"
		}
		fmt.Fprintf(out, "%s %-11s %s  %s\n", marker, label, it.Title, it.Subtitle)
	}
}
