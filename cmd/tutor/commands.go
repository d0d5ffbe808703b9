package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xhad/tutor/pkg/extract"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/tutor"
	"github.com/xhad/tutor/server"
)

var (
	classID   string
	className string
	studentID string
	crawlURL  string
	dryRun    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and websocket channel",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest PDF, HTML or text files (or a site with --url) into a class",
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the class tutor a question; without arguments starts a chat",
	RunE:  runAsk,
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Email students who have been inactive",
	Args:  cobra.NoArgs,
	RunE:  runNotify,
}

func init() {
	for _, cmd := range []*cobra.Command{ingestCmd, askCmd} {
		cmd.Flags().StringVar(&classID, "class", "", "class identifier")
		cmd.MarkFlagRequired("class")
	}
	ingestCmd.Flags().StringVar(&crawlURL, "url", "", "course site to crawl")
	askCmd.Flags().StringVar(&className, "class-name", "", "class name shown to the tutor")
	askCmd.Flags().StringVar(&studentID, "student", "", "student identifier for the history log")
	notifyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log emails instead of sending them")

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, notifyCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ing, err := a.ingester(cfg, nil)
	if err != nil {
		return err
	}

	srv := server.NewWithConfig(server.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		DocumentRoot:   cfg.Server.DocumentRoot,
		Crawler:        crawlerConfig(cfg.Crawler),
	}, a.tutor, ing, a.store)

	return srv.ListenAndServe(ctx)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && crawlURL == "" {
		return errors.New("nothing to ingest: pass files or --url")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	progress := &chunkProgress{}
	defer progress.finish()
	ing, err := a.ingester(cfg, progress.onChunk)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		report, err := ing.IngestFile(ctx, classID, path)
		progress.finish()
		if err != nil {
			failed++
			color.Red("✗ %s: %v", path, err)
			continue
		}
		printReport(report)
	}

	if crawlURL != "" {
		crawlCfg := crawlerConfig(cfg.Crawler)
		crawlCfg.BaseURL = crawlURL
		crawlCfg.OnProgress = func(url string) {
			log.Debug().Str("url", url).Msg("fetching page")
		}
		crawler, err := extract.NewCrawler(crawlCfg)
		if err != nil {
			return err
		}

		spinner := getSpinner(" Crawling course pages...")
		reports, err := ing.IngestSite(ctx, classID, crawler)
		spinner.Finish()
		progress.finish()
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", crawlURL, err)
		}
		for _, report := range reports {
			printReport(report)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func printReport(r ingest.Report) {
	color.Green("✓ %s: %d chunks (%d embedded)", r.DocumentID, r.Chunks, r.Embedded)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) > 0 {
		ask(ctx, a, strings.Join(args, " "))
		return nil
	}

	color.Cyan("\nChat with the %s tutor (type 'exit' to quit)", classLabel())
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}
		ask(ctx, a, query)
	}
	return scanner.Err()
}

func classLabel() string {
	if className != "" {
		return className
	}
	return classID
}

func ask(ctx context.Context, a *app, query string) {
	req := tutor.Request{ClassID: classID, ClassName: className, StudentID: studentID, Query: query}

	spinner := getSpinner(" Thinking...")
	resp := a.tutor.Answer(ctx, req)
	spinner.Finish()

	if err := a.store.LogInteraction(ctx, tutor.NewInteraction(req, resp)); err != nil {
		log.Error().Err(err).Msg("failed to log interaction")
	}

	color.New(color.FgCyan).Printf("\nTutor: %s\n", resp.Answer)
	for _, src := range resp.Sources {
		line := fmt.Sprintf("  · %v", src.Metadata["source"])
		if page, ok := src.Metadata["page"]; ok {
			line += fmt.Sprintf(" p.%v", page)
		}
		if score, ok := src.Metadata["score"].(float64); ok {
			line += fmt.Sprintf(" (%.2f)", score)
		}
		color.New(color.Faint).Println(line)
	}
}

func runNotify(cmd *cobra.Command, args []string) error {
	if !dryRun && cfg.Notify.SMTP.Host == "" {
		return errors.New("notify.smtp.host is not configured; use --dry-run to preview")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.campaign(cfg, dryRun).Run(ctx)
	if err != nil {
		return err
	}

	color.Cyan("Inactive students: %d", report.Candidates)
	color.Green("✓ Sent: %d", report.Sent)
	if report.Skipped > 0 {
		color.Yellow("Skipped (recently notified): %d", report.Skipped)
	}
	if report.Failed > 0 {
		color.Red("✗ Failed: %d", report.Failed)
	}
	return nil
}
