package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/poliscope/poliscope/internal/model"
	"github.com/poliscope/poliscope/internal/prefs"
)

var (
	filterType string
	filterID   string
	filterName string
)

// filtersCmd represents the filters command
var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage language and country filters",
	Long: `Manage the language/country filters that scope which politicians
are fetched for review. Filters persist between sessions; on first use a
language filter is detected from your locale.`,
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFilterStore()
		if err != nil {
			return err
		}
		filters, err := store.Load()
		if err != nil {
			return err
		}

		if len(filters) == 0 {
			fmt.Println("No filters set (all politicians match)")
			return nil
		}
		for _, f := range filters {
			fmt.Printf("%-10s %-10s %s\n", f.PreferenceType, f.WikidataID, f.Name)
		}
		return nil
	},
}

var filtersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a filter",
	Long: `Add a language or country filter.

Example:
  poliscope filters add --type language --id Q1860 --name English
  poliscope filters add --type country --id Q142 --name France`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := model.PreferenceType(filterType)
		if t != model.PreferenceLanguage && t != model.PreferenceCountry {
			return fmt.Errorf("invalid filter type %q (use language or country)", filterType)
		}
		if filterID == "" {
			return fmt.Errorf("--id is required")
		}

		store, err := openFilterStore()
		if err != nil {
			return err
		}
		filters, err := store.Load()
		if err != nil {
			return err
		}

		for _, f := range filters {
			if f.WikidataID == filterID && f.PreferenceType == t {
				return fmt.Errorf("filter %s already present", filterID)
			}
		}

		filters = append(filters, model.Filter{
			WikidataID:     filterID,
			Name:           filterName,
			PreferenceType: t,
		})
		if err := store.Save(filters); err != nil {
			return err
		}
		fmt.Printf("✓ Added %s filter %s\n", t, filterID)
		return nil
	},
}

var filtersRemoveCmd = &cobra.Command{
	Use:   "remove <wikidata-id>",
	Short: "Remove a filter by wikidata ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFilterStore()
		if err != nil {
			return err
		}
		filters, err := store.Load()
		if err != nil {
			return err
		}

		kept := filters[:0]
		removed := 0
		for _, f := range filters {
			if f.WikidataID == args[0] {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		if removed == 0 {
			return fmt.Errorf("no filter with ID %s", args[0])
		}

		if err := store.Save(kept); err != nil {
			return err
		}
		fmt.Printf("✓ Removed %d filter(s)\n", removed)
		return nil
	},
}

var filtersClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFilterStore()
		if err != nil {
			return err
		}
		if err := store.Save(nil); err != nil {
			return err
		}
		fmt.Println("✓ Cleared all filters")
		return nil
	},
}

func openFilterStore() (*prefs.Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	store := prefs.NewStore(dir)
	if verbose {
		fmt.Fprintf(os.Stderr, "Filter file: %s\n", store.Path())
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(filtersCmd)
	filtersCmd.AddCommand(filtersListCmd)
	filtersCmd.AddCommand(filtersAddCmd)
	filtersCmd.AddCommand(filtersRemoveCmd)
	filtersCmd.AddCommand(filtersClearCmd)

	filtersAddCmd.Flags().StringVar(&filterType, "type", "language", "filter type (language or country)")
	filtersAddCmd.Flags().StringVar(&filterID, "id", "", "wikidata ID (e.g. Q1860)")
	filtersAddCmd.Flags().StringVar(&filterName, "name", "", "display name")
}
