package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momcare/pregnancy-tracker/internal/config"
	"github.com/momcare/pregnancy-tracker/internal/domain/record"
	"github.com/momcare/pregnancy-tracker/internal/domain/tracker"
	"github.com/momcare/pregnancy-tracker/internal/platform/notification"
)

// errEphemeralStore is returned by data commands run against the memory
// store, which starts empty in every process.
var errEphemeralStore = errors.New("this command needs a persistent store: set STORE_DRIVER=postgres and DATABASE_URL (the memory store is emptied when the command exits)")

func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requirePersistentStore(cfg); err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requirePersistentStore(cfg *config.Config) error {
	if !cfg.UsesPostgres() {
		return errEphemeralStore
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage registered patients",
	}

	var name, email, due string
	var week int
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &record.Patient{Name: name, Email: email, CurrentWeek: week}
			if due != "" {
				d, err := tracker.ParseDueDate(due)
				if err != nil {
					return err
				}
				p.DueDate = &d
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.RegisterPatient(ctx, p); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "patient name")
	create.Flags().StringVar(&email, "email", "", "contact e-mail")
	create.Flags().StringVar(&due, "due-date", "", "due date (YYYY-MM-DD)")
	create.Flags().IntVar(&week, "week", 0, "current gestational week")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "summary <patient-id>",
		Short: "Print the dashboard summary of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sum, err := a.svc.Summary(ctx, args[0], nowFunc())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sum)
			})
		},
	})
	return cmd
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Submit health records",
	}

	var patientID, typ string
	var fields []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Submit a health record",
		Example: "  pregnancy-tracker record add --patient <id> --type blood_pressure \\\n" +
			"    --field systolic=150 --field diastolic=85 --field heartRate=78",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseFields(fields)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, n, err := a.svc.Submit(ctx, patientID, record.RecordType(typ), raw)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"record":       rec,
					"notification": n,
				})
			})
		},
	}
	add.Flags().StringVar(&patientID, "patient", "", "patient id")
	add.Flags().StringVar(&typ, "type", "", "record type: "+typeList())
	add.Flags().StringArrayVar(&fields, "field", nil, "form field as name=value (repeatable)")
	_ = add.MarkFlagRequired("patient")
	_ = add.MarkFlagRequired("type")
	cmd.AddCommand(add)
	return cmd
}

func typeList() string {
	names := make([]string, 0, len(record.Types))
	for _, t := range record.Types {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// parseFields turns name=value flags into raw form fields. Values stay
// strings; the record builder does the parsing.
func parseFields(pairs []string) (record.RawFields, error) {
	raw := record.RawFields{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("field %q must be name=value", p)
		}
		raw[name] = value
	}
	return raw, nil
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect the clinician notification feed",
	}

	var limit, offset int
	var patientID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, total, err := a.notifications.List(ctx, patientID, limit, offset)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, n := range items {
					fmt.Fprintln(w, formatNotification(n.Timestamp.Format("2006-01-02 15:04"), string(n.Severity), n.PatientName, n.Message, n.Read))
				}
				fmt.Fprintf(w, "%d of %d shown\n", len(items), total)
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of notifications")
	list.Flags().IntVar(&offset, "offset", 0, "number of notifications to skip")
	list.Flags().StringVar(&patientID, "patient", "", "only this patient's notifications")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "digest",
		Short: "E-mail the clinician the number of unread notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				unread, err := a.notifications.Unread(ctx)
				if err != nil {
					return err
				}
				if unread == 0 || !a.mailer.Enabled() {
					fmt.Fprintf(cmd.OutOrStdout(), "%d unread, no digest sent\n", unread)
					return nil
				}
				if err := a.mailer.Send(ctx, notification.TemplateUnreadDigest, map[string]string{
					"count": strconv.Itoa(unread),
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "digest sent for %d unread\n", unread)
				return nil
			})
		},
	})
	return cmd
}

func formatNotification(when, severity, patient, message string, read bool) string {
	mark := "*"
	if read {
		mark = " "
	}
	return fmt.Sprintf("%s %s %-6s %-20s %s", mark, when, severity, patient, message)
}
