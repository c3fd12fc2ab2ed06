package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bryanwahyu/petri/internal/application/lifecycle"
	"github.com/bryanwahyu/petri/internal/bootstrap"
	"github.com/bryanwahyu/petri/internal/config"
	"github.com/bryanwahyu/petri/internal/domain/analysis"
	domain "github.com/bryanwahyu/petri/internal/domain/index"
	"github.com/bryanwahyu/petri/internal/middleware"
)

// open loads the config named by --config, applies command flags and wires the services.
func open(c *cli.Context) (*bootstrap.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if c.IsSet("no-cache") {
		cfg.Analysis.UseCache = !c.Bool("no-cache")
	}
	if c.IsSet("completions") {
		cfg.Analysis.NumCompletions = c.Int("completions")
	}
	if c.IsSet("interval") {
		cfg.Analysis.PollInterval = c.Duration("interval")
	}
	if c.IsSet("max-attempts") {
		cfg.Analysis.MaxAttempts = c.Int("max-attempts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.New(c.Context, cfg, c.App.ErrWriter)
}

func promptArg(c *cli.Context) string {
	return middleware.SanitizeString(strings.Join(c.Args().Slice(), " "))
}

func requestIDArg(c *cli.Context) (analysis.RequestID, error) {
	id := strings.TrimSpace(c.Args().First())
	if err := middleware.ValidateRequestID(id); err != nil {
		return "", cli.Exit(err.Error(), 2)
	}
	return analysis.RequestID(id), nil
}

// AnalyzeAction runs the whole lifecycle for a prompt and prints the answer
func AnalyzeAction(c *cli.Context) error {
	prompt := promptArg(c)
	id := strings.TrimSpace(c.String("id"))
	if prompt == "" && id == "" {
		return cli.Exit("usage: petri analyze <prompt> (or --id <request-id>)", 2)
	}
	if prompt != "" {
		if err := middleware.ValidatePrompt(prompt); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}
	if id != "" {
		if err := middleware.ValidateRequestID(id); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	progress := c.App.ErrWriter
	obs := lifecycle.Observer{
		OnRequestID: func(id analysis.RequestID, src lifecycle.Source) {
			fmt.Fprintf(progress, "request %s (%s)\n", id, src)
		},
		OnStatus: func(st analysis.Status) {
			fmt.Fprintf(progress, "status: %s\n", st)
		},
	}

	res, err := app.Lifecycle.Run(c.Context, lifecycle.Request{Prompt: prompt, RequestID: analysis.RequestID(id)}, obs)
	if err != nil {
		return fmt.Errorf("analysis did not complete: %w", err)
	}

	if c.Bool("json") {
		return printResults(c.App.Writer, res)
	}
	printSummary(c.App.Writer, res)
	return nil
}

func printResults(w io.Writer, res *analysis.Results) error {
	if raw := res.Raw(); raw != nil {
		_, err := fmt.Fprintf(w, "%s\n", raw)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func printSummary(w io.Writer, res *analysis.Results) {
	fmt.Fprintln(w, res.Content)

	cited := res.CitedSources()
	if len(cited) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for _, s := range cited {
			fmt.Fprintf(w, "  [%d] %s %s\n", s.CitationMetadata.Order, s.Title, s.URL)
		}
	}

	info := res.TargetPageInfo
	fmt.Fprintln(w)
	switch {
	case info.TargetPageFound:
		fmt.Fprintf(w, "Target %s cited as %s source (position %d)\n",
			info.TargetDomain, info.TargetPageSource, info.TargetContent.Metadata.CitationMetadata.Order)
	case info.TargetDomain != "":
		fmt.Fprintf(w, "Target %s not cited\n", info.TargetDomain)
	default:
		fmt.Fprintln(w, "No target page")
	}
}

// ListAction prints the indexed prompts
func ListAction(c *cli.Context) error {
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.Index.Search(c.Context, c.String("search"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list prompts: %w", err)
	}
	printRecords(c.App.Writer, records)
	return nil
}

func printRecords(w io.Writer, records []domain.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No prompts indexed")
		return
	}
	fmt.Fprintf(w, "%-20s %-40s %s\n", "Created", "Request ID", "Prompt")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range records {
		fmt.Fprintf(w, "%-20s %-40s %s\n",
			r.CreatedAt().Local().Format("2006-01-02 15:04:05"),
			r.RequestID,
			r.Prompt,
		)
	}
	fmt.Fprintf(w, "\nTotal: %d prompts\n", len(records))
}

// LookupAction prints the request id indexed for a prompt
func LookupAction(c *cli.Context) error {
	prompt := promptArg(c)
	if prompt == "" {
		return cli.Exit("usage: petri lookup <prompt>", 2)
	}
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	id, ok, err := app.Index.Lookup(c.Context, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("no request id indexed for %q", prompt), 1)
	}
	fmt.Fprintln(c.App.Writer, id)
	return nil
}

// RemoveAction drops a prompt from the index
func RemoveAction(c *cli.Context) error {
	prompt := promptArg(c)
	if prompt == "" {
		return cli.Exit("usage: petri remove <prompt>", 2)
	}
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.Index.Remove(c.Context, prompt)
	if err != nil {
		return fmt.Errorf("failed to remove prompt: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Removed %q, %d prompts left\n", prompt, len(records))
	return nil
}

// StatusAction prints one status poll
func StatusAction(c *cli.Context) error {
	id, err := requestIDArg(c)
	if err != nil {
		return err
	}
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	st, err := app.API.Status(c.Context, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s %s\n", st.Status, st.Timestamp)
	return nil
}

// ResultsAction prints the results document
func ResultsAction(c *cli.Context) error {
	id, err := requestIDArg(c)
	if err != nil {
		return err
	}
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.API.Results(c.Context, id)
	if err != nil {
		return err
	}
	return printResults(c.App.Writer, res)
}

// OptimizeAction prints recommendations for a completed analysis
func OptimizeAction(c *cli.Context) error {
	id, err := requestIDArg(c)
	if err != nil {
		return err
	}
	prompt := middleware.SanitizeString(c.String("prompt"))
	if err := middleware.ValidatePrompt(prompt); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	recs, err := app.Advisor.Recommend(c.Context, prompt, id)
	if err != nil {
		return err
	}
	w := c.App.Writer
	for i, r := range recs {
		fmt.Fprintf(w, "%d. %s [%s, impact %s, effort %s]\n", i+1, r.Title, r.Category, r.Impact, r.Effort)
		if r.Description != "" {
			fmt.Fprintf(w, "   %s\n", r.Description)
		}
	}
	return nil
}

// WatchAction prints the newest prompts every time the index changes
func WatchAction(c *cli.Context) error {
	app, err := open(c)
	if err != nil {
		return err
	}
	defer app.Close()

	changed := make(chan struct{}, 1)
	unsubscribe := app.Index.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- app.Watch(c.Context) }()

	w := c.App.Writer
	records, err := app.Index.Search(c.Context, "", 10)
	if err != nil {
		return err
	}
	printRecords(w, records)

	for {
		select {
		case <-c.Context.Done():
			return <-done
		case err := <-done:
			if err != nil {
				return err
			}
			if !app.Config.Index.Watch {
				return cli.Exit("index watching is disabled in config", 1)
			}
			<-c.Context.Done()
			return nil
		case <-changed:
			records, err := app.Index.Search(c.Context, "", 10)
			if err != nil {
				app.Logger.Warn("reading index", "error", err)
				continue
			}
			fmt.Fprintf(w, "\n-- index changed at %s --\n", time.Now().Format("15:04:05"))
			printRecords(w, records)
		}
	}
}
