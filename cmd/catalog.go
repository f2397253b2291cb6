/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/types"
	"github.com/spf13/cobra"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print categories with their book counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		svc, dbConn, err := openServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		defer svc.Close()

		categories, err := svc.Books.ListCategories(cmd.Context())
		if err != nil {
			return err
		}
		return printCatalog(cmd.OutOrStdout(), categories)
	},
}

func printCatalog(w io.Writer, categories []types.CategorySummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tBOOKS")
	total := 0
	for _, c := range categories {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", c.ID, c.Name, c.BookCount)
		total += c.BookCount
	}
	fmt.Fprintf(tw, "\tTOTAL\t%d\n", total)
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
