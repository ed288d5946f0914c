package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
)

func departmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "departments",
		Short: "List clinic departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			depts, err := a.client.Departments(cmd.Context(), a.sess)
			if err != nil {
				return err
			}
			for _, d := range depts {
				fmt.Fprintln(cmd.OutOrStdout(), d.Name)
			}
			return nil
		},
	}
}

// loadDepartments restricts the resolver to the store's departments.
func loadDepartments(cmd *cobra.Command, a *app) error {
	depts, err := a.client.Departments(cmd.Context(), a.sess)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(depts))
	for _, d := range depts {
		names = append(names, d.Name)
	}
	a.resolver.SetDepartments(names)
	return nil
}

func slotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the slot grid for a department and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, _ := cmd.Flags().GetString("department")
			rawDate, _ := cmd.Flags().GetString("date")

			date, err := parseDate(rawDate)
			if err != nil {
				return err
			}
			if err := loadDepartments(cmd, a); err != nil {
				return err
			}

			snap, err := a.resolver.Resolve(cmd.Context(), a.sess, dept, date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s, %s\n", snap.Department, calendar.DisplayDate(snap.Date))
			for _, s := range snap.Slots {
				status := "available"
				if !s.Available {
					status = "taken"
				}
				fmt.Fprintf(out, "  %s  %s\n", s.Label, status)
			}
			return nil
		},
	}
	cmd.Flags().String("department", "", "Department name")
	cmd.Flags().String("date", "", "Day as d_m_yyyy, e.g. 12_6_2025")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func bookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, _ := cmd.Flags().GetString("department")
			rawDate, _ := cmd.Flags().GetString("date")
			slot, _ := cmd.Flags().GetString("time")
			symptoms, _ := cmd.Flags().GetStringSlice("symptom")
			other, _ := cmd.Flags().GetString("other")
			letterPath, _ := cmd.Flags().GetString("referral")

			date, err := parseDate(rawDate)
			if err != nil {
				return err
			}

			req := booking.Request{
				Department:   dept,
				Date:         date,
				Time:         slot,
				Symptoms:     symptoms,
				OtherSymptom: other,
			}
			if letterPath != "" {
				content, err := os.ReadFile(letterPath)
				if err != nil {
					return fmt.Errorf("read referral letter: %w", err)
				}
				req.Referral = &booking.Referral{Name: filepath.Base(letterPath), Content: content}
			}

			if err := loadDepartments(cmd, a); err != nil {
				return err
			}
			// Resolve first so an already taken slot is rejected locally.
			if _, err := a.resolver.Resolve(cmd.Context(), a.sess, dept, date); err != nil {
				return err
			}

			created, err := a.manager.Submit(cmd.Context(), a.sess, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booked %s: %s on %s at %s\n",
				created.ID, created.Department, calendar.DisplayDate(created.SlotDate), created.SlotTime)
			return nil
		},
	}
	cmd.Flags().String("department", "", "Department name")
	cmd.Flags().String("date", "", "Day as d_m_yyyy")
	cmd.Flags().String("time", "", `Slot label, e.g. "09:00 AM"`)
	cmd.Flags().StringSlice("symptom", nil, "Symptom, repeatable: "+strings.Join(appointment.Symptoms, ", "))
	cmd.Flags().String("other", "", "Description when the Others symptom is selected")
	cmd.Flags().String("referral", "", "Path to a referral letter (pdf, jpeg or png)")
	_ = cmd.MarkFlagRequired("department")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func appointmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "appointments",
		Short: "List your appointments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := a.manager.Refresh(cmd.Context(), a.sess)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "no appointments")
				return nil
			}
			for _, v := range views {
				appt := v.Appointment
				var actions []string
				if v.CanCancel {
					actions = append(actions, "cancel")
				}
				if v.CanDelete {
					actions = append(actions, "delete")
				}
				fmt.Fprintf(out, "%s  %-20s %s %s  %-9s %s\n",
					appt.ID, appt.Department, calendar.DisplayDate(appt.SlotDate), appt.SlotTime,
					appt.State(), strings.Join(actions, ","))
			}
			return nil
		},
	}
}

func cancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel a booked appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, err = a.manager.Cancel(cmd.Context(), a.sess, id)
			if settled(cmd, a, id, "cancel", err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "appointment cancelled")
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <appointment-id>",
		Short: "Delete a cancelled appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			err = a.manager.Delete(cmd.Context(), a.sess, id)
			if settled(cmd, a, id, "delete", err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "appointment deleted")
			return nil
		},
	}
}

// settled reports an illegal transition as a notice instead of a failure.
// The manager has refetched the list by then, so the notice shows the
// appointment's current state.
func settled(cmd *cobra.Command, a *app, id uuid.UUID, verb string, err error) bool {
	if err == nil || !fault.NoFurtherAction(err) {
		return false
	}

	out := cmd.OutOrStdout()
	for _, v := range a.manager.Views() {
		if v.Appointment.ID == id {
			fmt.Fprintf(out, "appointment is %s, nothing to %s; list refreshed\n", v.Appointment.State(), verb)
			return true
		}
	}
	fmt.Fprintf(out, "appointment is no longer in your list, nothing to %s; list refreshed\n", verb)
	return true
}

func parseDate(raw string) (time.Time, error) {
	date, err := calendar.ParseToken(raw)
	if err != nil {
		return time.Time{}, fault.Invalid("date", "must be d_m_yyyy")
	}
	return date, nil
}

func referralCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "referral <ref>",
		Short: "Download a referral letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			content, mimeType, err := a.client.Referral(cmd.Context(), a.sess, args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, content, 0o600); err != nil {
				return fmt.Errorf("write referral letter: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s, %d bytes)\n", out, mimeType, len(content))
			return nil
		},
	}
	cmd.Flags().String("out", "referral", "Output file")
	return cmd
}
