package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigls/facload/internal/exitcode"
	"github.com/sigls/facload/internal/model"
	"github.com/sigls/facload/internal/normalize"
	"github.com/sigls/facload/internal/promote"
	"github.com/sigls/facload/internal/store"
)

var listOpts struct {
	status string
	limit  int
	offset int
}

var stagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Inspect staging records",
}

var stagingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staging records, newest first",
	RunE:  runStagingList,
}

var stagingShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one staging record and its linked facility",
	Args:  cobra.ExactArgs(1),
	RunE:  runStagingShow,
}

func init() {
	f := stagingListCmd.Flags()
	f.StringVar(&listOpts.status, "status", "", "Filter by status: pending, validated, error, ignored")
	f.IntVar(&listOpts.limit, "limit", 20, "Page size")
	f.IntVar(&listOpts.offset, "offset", 0, "Rows to skip")
	stagingCmd.AddCommand(stagingListCmd, stagingShowCmd)
	rootCmd.AddCommand(stagingCmd)
}

func runStagingList(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()

	status := model.Status(listOpts.status)
	if status != "" && !status.Valid() {
		log.Error().Str("status", listOpts.status).Msg("unknown status")
		os.Exit(exitcode.UsageError)
	}

	pool := connect(ctx, log)
	defer pool.Close()

	recs, total, err := store.NewPostgres(pool).ListRecords(ctx, model.RecordFilter{
		Status: status,
		Limit:  listOpts.limit,
		Offset: listOpts.offset,
	})
	if err != nil {
		exitOnError(log, err, "list staging records failed")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE KEY\tFACILITY\tDOCTOR\tSPECIALTY\tGEO")
	for _, r := range recs {
		geo := "-"
		if r.HasGeocode() {
			geo = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.SourceKey,
			orDash(r.RawFacilityName), orDash(r.RawDoctorName), orDash(r.RawSpecialtyName), geo)
	}
	w.Flush()
	fmt.Printf("\n%d of %d records (offset %d)\n", len(recs), total, listOpts.offset)
	return nil
}

func runStagingShow(cmd *cobra.Command, args []string) error {
	log := setupLog()
	ctx := context.Background()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		log.Error().Err(err).Msg("invalid staging id")
		os.Exit(exitcode.UsageError)
	}

	pool := connect(ctx, log)
	defer pool.Close()
	st := store.NewPostgres(pool)

	r, err := st.FindRecord(ctx, id)
	if err != nil {
		exitOnError(log, err, "find staging record failed")
	}
	if r == nil {
		exitOnError(log, promote.ErrRecordNotFound, "find staging record failed")
	}

	fmt.Printf("ID:           %d\n", r.ID)
	fmt.Printf("Status:       %s\n", r.Status)
	fmt.Printf("Source key:   %s\n", r.SourceKey)
	fmt.Printf("Facility:     %s\n", orDash(r.RawFacilityName))
	fmt.Printf("Doctor:       %s\n", orDash(r.RawDoctorName))
	fmt.Printf("Specialty:    %s\n", orDash(r.RawSpecialtyName))
	fmt.Printf("Display name: %s\n", orDash(r.DisplayName))
	fmt.Printf("Address:      %s\n", orDash(r.Address))
	if r.HasGeocode() {
		fmt.Printf("Geocode:      %.6f, %.6f\n", *r.Latitude, *r.Longitude)
	} else {
		fmt.Println("Geocode:      -")
	}
	fmt.Printf("Notes:        %s\n", orDash(r.Notes))

	if key, ok := promote.GroupKey(r); ok {
		group, err := st.FindGroup(ctx, key)
		if err != nil {
			exitOnError(log, err, "find group failed")
		}
		fmt.Printf("Group:        %d records\n", len(group))
	}

	if r.LinkedFacilityID == nil {
		return nil
	}
	fac, err := st.FindFacility(ctx, *r.LinkedFacilityID)
	if err != nil {
		exitOnError(log, err, "find facility failed")
	}
	if fac == nil {
		return nil
	}
	specs, err := st.FacilitySpecialties(ctx, fac.ID)
	if err != nil {
		exitOnError(log, err, "load facility specialties failed")
	}

	fmt.Println()
	fmt.Printf("Facility %d: %s (%s)\n", fac.ID, fac.Name, fac.SourceOriginID)
	for _, sp := range specs {
		fmt.Printf("  - %s\n", sp.Name)
	}
	return nil
}

func orDash(s *string) string {
	if v := normalize.Deref(s); v != "" {
		return v
	}
	return "-"
}
