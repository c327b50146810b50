package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/pipeline"
	"github.com/TobiSchelling/reviewgen/internal/server"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// --- extract command ---

var extractCmd = &cobra.Command{
	Use:   "extract URL",
	Short: "Scrape a product page and print the extracted record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		rec, err := newController(db).Scrape(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

// --- directive flags shared by generate and run ---

type directiveFlags struct {
	geo          string
	locale       string
	tone         string
	keywords     string
	competitors  string
	affiliates   []string
	instructions string
	imagePrompts bool
}

func (d *directiveFlags) register(cmd *cobra.Command) {
	def := dashboard.NewForm()
	f := cmd.Flags()
	f.StringVar(&d.geo, "geo", def.GeoFocus, "Audience geo focus")
	f.StringVar(&d.locale, "locale", def.Locale, "Article locale (BCP 47)")
	f.StringVar(&d.tone, "tone", def.Tone, "Writing tone")
	f.StringVar(&d.keywords, "keywords", def.Keywords, "Comma-separated target keywords")
	f.StringVar(&d.competitors, "competitors", "", "Comma or newline separated competitor URLs")
	f.StringArrayVar(&d.affiliates, "affiliate", nil,
		"Affiliate link as Platform=URL, repeatable (presets: "+strings.Join(dashboard.PresetPlatforms, ", ")+")")
	f.StringVar(&d.instructions, "instructions", "", "Custom instructions appended to the prompt")
	f.BoolVar(&d.imagePrompts, "image-prompts", def.IncludeImagePrompts, "Ask for [IMAGE PROMPT: ...] markers")
}

func (d *directiveFlags) form(productURL string) (dashboard.Form, error) {
	form := dashboard.Form{
		ProductURL:          productURL,
		GeoFocus:            d.geo,
		Locale:              d.locale,
		Tone:                d.tone,
		Keywords:            d.keywords,
		Competitors:         d.competitors,
		CustomInstructions:  d.instructions,
		IncludeImagePrompts: d.imagePrompts,
	}
	for _, a := range d.affiliates {
		link, err := dashboard.ParseAffiliate(a)
		if err != nil {
			return form, err
		}
		form.Affiliates = append(form.Affiliates, link)
	}
	return form, nil
}

// --- generate command ---

var (
	genFlags   directiveFlags
	genScrape  bool
	genRequest string
	genJSON    bool
	genOutFile string
)

var generateCmd = &cobra.Command{
	Use:   "generate [URL]",
	Short: "Generate a review article for a product URL",
	Long: `Generate a review article for a product URL.

With --scrape the page is extracted first and the record is sent as
reference data. With --request the full generation request is read from a
JSON file and the directive flags are ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if genRequest == "" && len(args) == 0 {
			return fmt.Errorf("a product URL or --request file is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)
		ctrl := newController(db)
		ctx := cmd.Context()

		var article *generate.Article
		if genRequest != "" {
			req, err := readRequest(genRequest)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				req.ProductURL = args[0]
			}
			article, err = ctrl.GenerateRequest(ctx, req)
			if err != nil {
				return err
			}
		} else {
			form, err := genFlags.form(args[0])
			if err != nil {
				return err
			}
			if genScrape {
				rec, err := ctrl.Scrape(ctx, args[0])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Scrape failed, generating without reference data: %v\n", err)
				}
				form.Reference = rec
			}
			article, err = ctrl.Generate(ctx, form)
			if err != nil {
				return err
			}
		}

		if err := writeArticle(article); err != nil {
			return err
		}
		printSpelling(os.Stderr, article.SpellIssues, article.AuditErr())
		return nil
	},
}

func init() {
	genFlags.register(generateCmd)
	f := generateCmd.Flags()
	f.BoolVar(&genScrape, "scrape", false, "Scrape the product page and use it as reference data")
	f.StringVar(&genRequest, "request", "", "Read the generation request from a JSON file")
	f.BoolVar(&genJSON, "json", false, "Print the full article result as JSON")
	f.StringVarP(&genOutFile, "output", "o", "", "Write the markdown to a file instead of stdout")
}

func readRequest(path string) (generate.Request, error) {
	var req generate.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing request %s: %w", path, err)
	}
	return req, nil
}

func writeArticle(a *generate.Article) error {
	if genJSON {
		return printJSON(a)
	}
	if genOutFile != "" {
		if err := os.WriteFile(genOutFile, []byte(a.Markdown+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing article: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", genOutFile)
		return nil
	}
	fmt.Println(a.Markdown)
	return nil
}

func printSpelling(w io.Writer, issues []spell.Issue, auditErr error) {
	if auditErr != nil {
		fmt.Fprintf(w, "\n%s: %v\n", dashboard.SpellUnavailable, auditErr)
		return
	}
	if len(issues) == 0 {
		fmt.Fprintf(w, "\n%s\n", dashboard.NoSpellingConcerns)
		return
	}
	fmt.Fprintf(w, "\nSpelling issues (%d):\n", len(issues))
	for _, is := range issues {
		hint := dashboard.NoSuggestions
		if len(is.Suggestions) > 0 {
			hint = strings.Join(is.Suggestions, ", ")
		}
		fmt.Fprintf(w, "  %s: %s\n", is.Word, hint)
	}
}

// --- spellcheck command ---

var spellcheckCmd = &cobra.Command{
	Use:   "spellcheck FILE|-",
	Short: "Audit the spelling of a markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading markdown: %w", err)
		}

		issues, err := spell.FromConfig(cfg.Spellcheck).Audit(cmd.Context(), string(data))
		if err != nil {
			printSpelling(os.Stdout, nil, err)
			return err
		}
		printSpelling(os.Stdout, issues, nil)
		return nil
	},
}

// --- image command ---

var imageAspect string

var imageCmd = &cobra.Command{
	Use:   "image PROMPT",
	Short: "Submit an image generation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		aspect := imageAspect
		if aspect == "" {
			aspect = cfg.Images.DefaultAspectRatio
		}
		entry, err := newController(db).SubmitImage(cmd.Context(), args[0], aspect)
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

func init() {
	imageCmd.Flags().StringVar(&imageAspect, "aspect", "", "Aspect ratio (default from config, e.g. 16:9)")
}

// --- run command ---

var (
	runFlags     directiveFlags
	dryRun       bool
	runImages    bool
	runMaxImages int
	runAspect    string
)

var runCmd = &cobra.Command{
	Use:   "run URL",
	Short: "Run the full workflow: extract -> generate -> spellcheck -> images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := runFlags.form(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		pipe := pipeline.New(cfg, newController(db), pipeline.Options{
			SubmitImages: runImages,
			AspectRatio:  runAspect,
			MaxImages:    runMaxImages,
		})

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(args[0], form)
		} else {
			result = pipe.Run(cmd.Context(), args[0], form)
		}

		total := len(result.Steps)
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, total, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if dryRun {
			return nil
		}
		if result.Article != nil {
			fmt.Printf("\n%s\n", result.Article.Markdown)
		}
		if db != nil {
			fmt.Println("\nRun complete! See 'reviewgen history' or 'reviewgen serve' for past runs.")
		}
		return nil
	},
}

func init() {
	runFlags.register(runCmd)
	f := runCmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	f.BoolVar(&runImages, "images", false, "Submit the article's image prompts")
	f.IntVar(&runMaxImages, "max-images", 4, "Maximum image prompts to submit")
	f.StringVar(&runAspect, "aspect", "", "Aspect ratio for submitted images")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		srv, err := server.New(newController(db), db)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") || port == 0 {
			port = servePort
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), srv, cfg.Server.Host, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
