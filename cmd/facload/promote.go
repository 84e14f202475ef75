package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/model"
)

var enrichOpts struct {
	displayName string
	address     string
	latitude    float64
	longitude   float64
	imageURL    string
	iconURL     string
	notes       string
}

var promoteCmd = &cobra.Command{
	Use:   "promote <staging-id>",
	Short: "Promote the group of a staging record into production",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

var enrichCmd = &cobra.Command{
	Use:   "enrich <staging-id>",
	Short: "Set manual facility details on every record of a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrich,
}

var statusCmd = &cobra.Command{
	Use:   "status <staging-id> <pending|error|ignored>",
	Short: "Change the status of one staging record",
	Args:  cobra.ExactArgs(2),
	RunE:  runStatus,
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichOpts.displayName, "name", "", "Display name")
	f.StringVar(&enrichOpts.address, "address", "", "Street address")
	f.Float64Var(&enrichOpts.latitude, "lat", 0, "Latitude")
	f.Float64Var(&enrichOpts.longitude, "lon", 0, "Longitude")
	f.StringVar(&enrichOpts.imageURL, "image-url", "", "Image URL")
	f.StringVar(&enrichOpts.iconURL, "icon-url", "", "Map icon URL")
	f.StringVar(&enrichOpts.notes, "notes", "", "Free-form notes")
	rootCmd.AddCommand(promoteCmd, enrichCmd, statusCmd)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "invalid id %q\n", s)
		os.Exit(exitcode.UsageError)
	}
	return id
}

func runPromote(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()
	id := parseID(args[0])

	pool := connect(ctx, log)
	defer pool.Close()

	res, err := newService(pool, log).Promote(ctx, id)
	if err != nil {
		exitOnError(log, err, "promotion failed")
	}

	fmt.Printf("Promoted group %q into facility %d (%s): %d records, %d doctors, %d specialties linked",
		res.GroupKey, res.Facility.ID, res.Facility.Name, res.GroupSize, res.DoctorsProcessed, res.SpecialtiesLinked)
	if res.SpecialtiesUnmapped+res.SpecialtiesHidden > 0 {
		fmt.Printf(", %d unmapped, %d hidden", res.SpecialtiesUnmapped, res.SpecialtiesHidden)
	}
	fmt.Printf(" (%.2fs)\n", res.Duration.Seconds())
	return nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()
	id := parseID(args[0])

	flags := cmd.Flags()
	str := func(name, v string) *string {
		if !flags.Changed(name) {
			return nil
		}
		return &v
	}
	num := func(name string, v float64) *float64 {
		if !flags.Changed(name) {
			return nil
		}
		return &v
	}
	e := model.Enrichment{
		DisplayName: str("name", enrichOpts.displayName),
		Address:     str("address", enrichOpts.address),
		Latitude:    num("lat", enrichOpts.latitude),
		Longitude:   num("lon", enrichOpts.longitude),
		ImageURL:    str("image-url", enrichOpts.imageURL),
		IconURL:     str("icon-url", enrichOpts.iconURL),
		Notes:       str("notes", enrichOpts.notes),
	}
	if e.IsEmpty() {
		log.Error().Msg("nothing to enrich: pass at least one field flag")
		os.Exit(exitcode.UsageError)
	}

	pool := connect(ctx, log)
	defer pool.Close()

	res, err := newService(pool, log).Enrich(ctx, id, e)
	if err != nil {
		exitOnError(log, err, "enrichment failed")
	}
	fmt.Printf("Enriched %d records\n", res.UpdatedCount)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()
	id := parseID(args[0])

	pool := connect(ctx, log)
	defer pool.Close()

	if err := newService(pool, log).SetStatus(ctx, id, model.Status(args[1])); err != nil {
		exitOnError(log, err, "status change failed")
	}
	fmt.Printf("Record %d set to %s\n", id, args[1])
	return nil
}
