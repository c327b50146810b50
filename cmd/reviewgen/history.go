package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/reviewgen/internal/database"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:       "history [articles|images|extractions]",
	Short:     "List past runs from the history database",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"articles", "images", "extractions"},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if db == nil {
			fmt.Println("History is disabled. Set history.enabled: true in the config.")
			return nil
		}
		defer closeDB(db)

		what := "articles"
		if len(args) == 1 {
			what = args[0]
		}
		switch what {
		case "images":
			return listImages(db)
		case "extractions":
			return listExtractions(db)
		default:
			return listArticles(db)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func listArticles(db *database.DB) error {
	items, err := db.GetArticles(historyLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No articles yet. Generate one with: reviewgen generate URL")
		return nil
	}

	fmt.Println("Articles:")
	fmt.Println()
	for _, a := range items {
		audit := "spelling audited"
		if a.SpellcheckError != nil {
			audit = "spell check unavailable"
		}
		fmt.Printf("  [%s] %s\n", a.ID, a.ProductURL)
		fmt.Printf("        %s, %d chars, %s\n", deref(a.CreatedAt), len(a.Markdown), audit)
	}
	return nil
}

func listImages(db *database.DB) error {
	items, err := db.GetImageJobs(historyLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No image jobs yet. Submit one with: reviewgen image PROMPT")
		return nil
	}

	fmt.Println("Image jobs:")
	fmt.Println()
	for _, j := range items {
		prompt := j.Prompt
		if len([]rune(prompt)) > 60 {
			prompt = string([]rune(prompt)[:60]) + "..."
		}
		fmt.Printf("  [%s] %s (%s)\n", j.Status, prompt, j.AspectRatio)
		if j.ImageURL != nil {
			fmt.Printf("        %s\n", *j.ImageURL)
		} else if j.Error != nil {
			fmt.Printf("        error: %s\n", *j.Error)
		}
	}
	return nil
}

func listExtractions(db *database.DB) error {
	items, err := db.GetExtractions(historyLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("No extractions yet. Scrape a page with: reviewgen extract URL")
		return nil
	}

	fmt.Println("Extractions:")
	fmt.Println()
	for _, x := range items {
		outcome := "ok"
		if x.ErrorKind != nil {
			outcome = *x.ErrorKind + ": " + deref(x.ErrorMessage)
		}
		fmt.Printf("  %s %s\n", deref(x.CreatedAt), x.URL)
		fmt.Printf("        %s\n", outcome)
	}
	return nil
}
