// profilectl manages the emergency contacts and medical record that alerts are
// dispatched with.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"alertaraven/config"
	"alertaraven/models"
	"alertaraven/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openFunc opens the profile store and returns a closer for its backend
type openFunc func(ctx context.Context) (*services.ProfileStore, func() error, error)

func main() {
	open := func(ctx context.Context) (*services.ProfileStore, func() error, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		logger := zap.NewNop()
		kv, err := services.NewKVStoreFromConfig(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return services.NewProfileStore(kv, logger), kv.Close, nil
	}

	if err := newRootCmd(open, os.Stdout).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open openFunc, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "profilectl",
		Short:        "Manage emergency contacts and the medical record",
		SilenceUsage: true,
	}
	root.SetOut(out)

	// withStore runs fn against an open store and closes it afterwards
	withStore := func(fn func(cmd *cobra.Command, args []string, store *services.ProfileStore) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			defer closeFn()
			return fn(cmd, args, store)
		}
	}

	root.AddCommand(newContactsCmd(withStore), newMedicalCmd(withStore), newPreviewCmd(withStore))
	return root
}

type storeRunner func(fn func(cmd *cobra.Command, args []string, store *services.ProfileStore) error) func(*cobra.Command, []string) error

func newContactsCmd(withStore storeRunner) *cobra.Command {
	contacts := &cobra.Command{Use: "contacts", Short: "Emergency contacts"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts in dispatch order",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, store *services.ProfileStore) error {
			all, err := store.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No emergency contacts configured")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPHONE")
			for _, c := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Phone)
			}
			return w.Flush()
		}),
	}

	var name, phone string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a contact",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, store *services.ProfileStore) error {
			c, err := store.AddContact(cmd.Context(), name, phone)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) with id %s\n", c.Name, c.Phone, c.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&name, "name", "", "Contact name")
	add.Flags().StringVar(&phone, "phone", "", "Contact phone number")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("phone")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, store *services.ProfileStore) error {
			if err := store.RemoveContact(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		}),
	}

	contacts.AddCommand(list, add, remove)
	return contacts
}

func newMedicalCmd(withStore storeRunner) *cobra.Command {
	medical := &cobra.Command{Use: "medical", Short: "Medical record"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the medical record as it appears in alerts",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, store *services.ProfileStore) error {
			record, err := store.MedicalRecord(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), services.FormatMedicalSummary(record))
			return nil
		}),
	}

	var patch models.MedicalRecord
	set := &cobra.Command{
		Use:   "set",
		Short: "Update fields of the medical record; unset flags keep their value",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, store *services.ProfileStore) error {
			record, err := store.MedicalRecord(cmd.Context())
			if err != nil {
				return err
			}
			applyMedicalFlags(cmd, &record, patch)
			return store.SaveMedicalRecord(cmd.Context(), record)
		}),
	}
	f := set.Flags()
	f.StringVar(&patch.BloodType, "blood-type", "", "Blood type")
	f.StringVar(&patch.Allergies, "allergies", "", "Allergies")
	f.StringVar(&patch.Medications, "medications", "", "Current medications")
	f.StringVar(&patch.MedicalConditions, "conditions", "", "Medical conditions")
	f.StringVar(&patch.EmergencyContact, "emergency-contact", "", "Emergency contact note")
	f.StringVar(&patch.Insurance, "insurance", "", "Insurance")
	f.StringVar(&patch.Doctor, "doctor", "", "Doctor")
	f.StringVar(&patch.Height, "height", "", "Height in cm")
	f.StringVar(&patch.Weight, "weight", "", "Weight in kg")
	f.BoolVar(&patch.HasDiabetes, "diabetes", false, "Has diabetes")
	f.BoolVar(&patch.HasHypertension, "hypertension", false, "Has hypertension")
	f.BoolVar(&patch.HasHeartConditions, "heart-conditions", false, "Has heart conditions")
	f.StringVar(&patch.OtherInfo, "other", "", "Additional information")

	medical.AddCommand(show, set)
	return medical
}

// applyMedicalFlags copies the flags the user actually passed onto record
func applyMedicalFlags(cmd *cobra.Command, record *models.MedicalRecord, patch models.MedicalRecord) {
	changed := cmd.Flags().Changed
	strs := map[string]struct{ dst, src *string }{
		"blood-type":        {&record.BloodType, &patch.BloodType},
		"allergies":         {&record.Allergies, &patch.Allergies},
		"medications":       {&record.Medications, &patch.Medications},
		"conditions":        {&record.MedicalConditions, &patch.MedicalConditions},
		"emergency-contact": {&record.EmergencyContact, &patch.EmergencyContact},
		"insurance":         {&record.Insurance, &patch.Insurance},
		"doctor":            {&record.Doctor, &patch.Doctor},
		"height":            {&record.Height, &patch.Height},
		"weight":            {&record.Weight, &patch.Weight},
		"other":             {&record.OtherInfo, &patch.OtherInfo},
	}
	for flag, p := range strs {
		if changed(flag) {
			*p.dst = *p.src
		}
	}
	bools := map[string]struct{ dst, src *bool }{
		"diabetes":         {&record.HasDiabetes, &patch.HasDiabetes},
		"hypertension":     {&record.HasHypertension, &patch.HasHypertension},
		"heart-conditions": {&record.HasHeartConditions, &patch.HasHeartConditions},
	}
	for flag, p := range bools {
		if changed(flag) {
			*p.dst = *p.src
		}
	}
}

func newPreviewCmd(withStore storeRunner) *cobra.Command {
	var kind string
	var maxContacts int
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Print the emergency message and its recipients without sending it",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, store *services.ProfileStore) error {
			label := models.LabelPhoneFall
			switch kind {
			case "fall":
			case "crash":
				label = models.LabelVehicleAccident
			default:
				return fmt.Errorf("unknown event kind %q (want fall or crash)", kind)
			}

			snapshot, err := store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			recipients := snapshot.DispatchContacts(maxContacts)
			if len(recipients) == 0 {
				fmt.Fprintln(out, "Warning: no emergency contacts, the alert would be refused")
			}
			for i, c := range recipients {
				note := "sms"
				if i == 0 {
					note = "sms + call"
				}
				fmt.Fprintf(out, "To: %s <%s> (%s)\n", c.Name, c.Phone, note)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, services.FormatEmergencyMessage(label, snapshot.Medical, time.Now()))
			return nil
		}),
	}
	preview.Flags().StringVar(&kind, "event", "fall", "fall or crash")
	preview.Flags().IntVar(&maxContacts, "max-contacts", 3, "Contacts that receive the message")
	return preview
}
