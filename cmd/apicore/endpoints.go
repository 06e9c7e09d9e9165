package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	endpointsCategory string
	endpointsJSON     bool
)

var endpointsCmd = &cobra.Command{
	Use:     "endpoints [key]",
	Aliases: []string{"ls"},
	Short:   "List registered endpoints",
	Long: `List the endpoints known after hydration and config seeding.

With a key, print that endpoint's full definition as JSON.

Examples:
  apicore endpoints
  apicore endpoints --category billing
  apicore endpoints users`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEndpoints,
}

func init() {
	rootCmd.AddCommand(endpointsCmd)

	endpointsCmd.Flags().StringVar(&endpointsCategory, "category", "", "only list endpoints in this category")
	endpointsCmd.Flags().BoolVar(&endpointsJSON, "json", false, "print the list as JSON")
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	reg := a.Manager.Registry

	if len(args) == 1 {
		e, ok := reg.Get(args[0])
		if !ok {
			return fmt.Errorf("endpoint not found: %s", args[0])
		}
		return printJSON(e)
	}

	list := reg.GetAll()
	if endpointsCategory != "" {
		list = reg.GetByCategory(endpointsCategory)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	if endpointsJSON {
		return printJSON(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMETHOD\tSTATUS\tCATEGORY\tURL")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Key, e.Method, e.Status, e.Category, e.URL)
	}
	return w.Flush()
}
