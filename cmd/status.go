package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicdata/budget-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what data is loaded and where it came from",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStoreReadOnly(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		if stats.TotalRecords == 0 {
			fmt.Println("No data loaded. Run `budget-cli ingest` first.")
			return nil
		}

		fmt.Printf("Records:   %d\n", stats.TotalRecords)
		fmt.Printf("Years:     %d-%d\n", stats.MinYear, stats.MaxYear)
		fmt.Printf("Programs:  %d\n", stats.UniquePrograms)
		fmt.Printf("Services:  %d\n", stats.UniqueServices)
		fmt.Printf("Expenses:  $%.2f\n", stats.TotalExpenses)
		fmt.Printf("Revenue:   $%.2f\n", stats.TotalRevenue)

		for _, key := range []string{
			store.MetaSourceFile,
			store.MetaYearsCovered,
			store.MetaLastUpdated,
		} {
			val, err := st.GetMetadata(ctx, key)
			if err != nil {
				return err
			}
			if val != "" {
				fmt.Printf("%-10s %s\n", key+":", val)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
