/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var seedFile string

type seedBook struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ISBN            string  `json:"isbn"`
	Category        string  `json:"category"`
	Publisher       string  `json:"publisher"`
	PublicationDate string  `json:"publication_date"`
	TotalCopies     int     `json:"total_copies"`
	AvailableCopies *int    `json:"available_copies"`
	Description     string  `json:"description"`
	ImageURL        *string `json:"image_url"`
	EbookURL        *string `json:"ebook_url"`
}

type seedData struct {
	Categories []string   `json:"categories"`
	Books      []seedBook `json:"books"`
}

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load categories and books from a JSON file",
	Long: `Load categories and books from a JSON file. Books whose ISBN already
exists are skipped. Usage:

	libranet seed --file seed/books.json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(seedFile)
		if err != nil {
			return err
		}
		defer f.Close()

		categories, books, err := parseSeed(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", seedFile, err)
		}

		cfg := config.LoadConfig()
		svc, dbConn, err := openServices(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		defer svc.Close()

		result, err := svc.Books.Import(cmd.Context(), categories, books)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "categories created: %d, books created: %d, books skipped: %d\n",
			result.CategoriesCreated, result.BooksCreated, result.BooksSkipped)
		return nil
	},
}

func parseSeed(r io.Reader) ([]string, []services.BookInput, error) {
	var data seedData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, nil, err
	}

	books := make([]services.BookInput, 0, len(data.Books))
	for _, b := range data.Books {
		in := services.BookInput{
			Title:           b.Title,
			Author:          b.Author,
			ISBN:            b.ISBN,
			Category:        b.Category,
			Publisher:       b.Publisher,
			TotalCopies:     b.TotalCopies,
			AvailableCopies: b.AvailableCopies,
			Description:     b.Description,
			ImageURL:        b.ImageURL,
			EbookURL:        b.EbookURL,
		}
		if b.PublicationDate != "" {
			published, err := time.Parse(time.DateOnly, b.PublicationDate)
			if err != nil {
				return nil, nil, fmt.Errorf("book %q: invalid publication_date %q", b.ISBN, b.PublicationDate)
			}
			in.PublicationDate = &published
		}
		books = append(books, in)
	}
	return data.Categories, books, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed/books.json", "path to the seed JSON file")
}
