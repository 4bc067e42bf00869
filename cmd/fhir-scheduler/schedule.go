package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Build Schedule and Slot resources offline",
	}
	cmd.AddCommand(renderCmd())
	cmd.AddCommand(slotsCmd())
	return cmd
}

func renderCmd() *cobra.Command {
	var (
		actors          []string
		start, end      string
		name, comment   string
		serviceCategory string
		serviceTypes    []string
		specialties     []string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the FHIR JSON of a schedule",
		Example: `  fhir-scheduler schedule render --actor 'Practitioner:urn:npi|1234' \
    --start 2024-03-01T08:00:00Z --end 2024-03-01T17:00:00Z --name "Cardiology"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]availability.BookableActor, 0, len(actors))
			for _, a := range actors {
				actor, err := parseActorFlag(a)
				if err != nil {
					return err
				}
				parsed = append(parsed, actor)
			}
			period, err := parsePeriod(start, end)
			if err != nil {
				return err
			}
			var opts *availability.ScheduleOptions
			if name != "" || comment != "" || serviceCategory != "" || len(serviceTypes) > 0 || len(specialties) > 0 {
				opts = &availability.ScheduleOptions{
					Name:            name,
					Comment:         comment,
					ServiceCategory: serviceCategory,
					ServiceType:     serviceTypes,
					Specialty:       specialties,
				}
			}
			return writeJSON(cmd.OutOrStdout(), availability.New(parsed, period, opts).Record())
		},
	}
	cmd.Flags().StringArrayVar(&actors, "actor", nil, "Bookable actor as Type[:system|value], repeatable")
	cmd.Flags().StringVar(&start, "start", "", "Planning horizon start")
	cmd.Flags().StringVar(&end, "end", "", "Planning horizon end")
	cmd.Flags().StringVar(&name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&comment, "comment", "", "Schedule comment")
	cmd.Flags().StringVar(&serviceCategory, "service-category", "", "Service category label")
	cmd.Flags().StringSliceVar(&serviceTypes, "service-type", nil, "Service type labels")
	cmd.Flags().StringSliceVar(&specialties, "specialty", nil, "Specialty labels")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func slotsCmd() *cobra.Command {
	var (
		scheduleID string
		start, end string
		every      time.Duration
		status     string
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Cut a window of a schedule into Slots and print them as a collection Bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := availability.SlotStatus(status)
			if !st.Valid() {
				return fmt.Errorf("invalid slot status %q", status)
			}
			if every <= 0 {
				return fmt.Errorf("--every must be positive")
			}
			period, err := parsePeriod(start, end)
			if err != nil {
				return err
			}
			bundle, err := slotBundle(availability.SplitSlots(availability.ScheduleReference(scheduleID), period, every, st))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), bundle)
		},
	}
	cmd.Flags().StringVar(&scheduleID, "schedule", "", "Id of the schedule the slots belong to")
	cmd.Flags().StringVar(&start, "start", "", "Window start")
	cmd.Flags().StringVar(&end, "end", "", "Window end")
	cmd.Flags().DurationVar(&every, "every", 30*time.Minute, "Slot length")
	cmd.Flags().StringVar(&status, "status", string(availability.SlotFree), "Slot status")
	_ = cmd.MarkFlagRequired("schedule")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// parseActorFlag reads Type, Type:value or Type:system|value.
func parseActorFlag(s string) (availability.BookableActor, error) {
	typ, rest, _ := strings.Cut(s, ":")
	t, err := availability.ParseActorType(typ)
	if err != nil {
		return availability.BookableActor{}, err
	}
	system, value, ok := strings.Cut(rest, "|")
	if !ok {
		system, value = "", rest
	}
	return availability.NewActor(t, system, value), nil
}

func parsePeriod(start, end string) (availability.Period, error) {
	s, err := availability.ParseTime(start)
	if err != nil {
		return availability.Period{}, fmt.Errorf("start: %w", err)
	}
	e, err := availability.ParseTime(end)
	if err != nil {
		return availability.Period{}, fmt.Errorf("end: %w", err)
	}
	return availability.Period{Start: s, End: e}, nil
}

func slotBundle(slots []availability.Slot) (*fhir.Bundle, error) {
	resources := make([]map[string]interface{}, len(slots))
	for i, slot := range slots {
		raw, err := json.Marshal(slot)
		if err != nil {
			return nil, fmt.Errorf("marshal slot %d: %w", i, err)
		}
		if err := json.Unmarshal(raw, &resources[i]); err != nil {
			return nil, fmt.Errorf("decode slot %d: %w", i, err)
		}
	}
	return fhir.NewCollectionBundle(resources...)
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
