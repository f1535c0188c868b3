package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"esgdocs/internal/app"
	"esgdocs/internal/config"
	"esgdocs/internal/connectors"
	"esgdocs/internal/detect"
	"esgdocs/internal/listener"
	"esgdocs/internal/metrics"
	"esgdocs/internal/ocr/tesseract"
	"esgdocs/internal/pipeline"
	"esgdocs/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := app.NewLogger(cfg, os.Stderr)
	cmd := os.Args[1]

	if cmd == "detect" {
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		buf, err := os.ReadFile(*input)
		must(err)
		info := detect.New(detect.Options{Strict: cfg.DetectStrict}).Detect(filepath.Base(*input), buf, mimeFor(*input))
		printJSON(info)
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	a := app.Build(cfg, db, tesseract.New, logger)
	defer a.Close()

	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path")
		output := fs.String("output", "", "optional output xlsx path")
		mode := fs.String("mode", "", "DEMO|TRIAL|PAID|EXPIRED")
		asJSON := fs.Bool("json", false, "print the full result as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		if *mode != "" {
			_ = a.Close()
			cfg.OCRDefaultMode = *mode
			a = app.Build(cfg, db, tesseract.New, logger)
			defer a.Close()
		}
		a.Start(ctx)
		res, err := a.Processor.ProcessFile(ctx, *input)
		must(err)
		if *asJSON {
			printJSON(res)
		} else {
			printDocument(res)
		}
		if *output != "" {
			must(pipeline.ExportEntriesToXLSX(pipeline.EntryRows([]pipeline.DocumentResult{res}), *output))
			fmt.Printf("exported %d entries to %s\n", len(res.Entries()), *output)
		}
	case "batch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", "", "directory with documents")
		recursive := fs.Bool("recursive", false, "descend into subdirectories")
		workers := fs.Int("workers", 4, "parallel documents")
		output := fs.String("output", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*dir) == "" {
			must(fmt.Errorf("--dir is required"))
		}
		paths, err := pipeline.CollectFiles(*dir, *recursive)
		must(err)
		if len(paths) == 0 {
			must(fmt.Errorf("no files in %s", *dir))
		}
		a.Start(ctx)
		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("processing documents"),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
		items, err := a.Processor.ProcessBatch(ctx, paths, *workers, func(pipeline.BatchItem) { _ = bar.Add(1) })
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
		must(err)

		var results []pipeline.DocumentResult
		failed := 0
		for _, it := range items {
			switch {
			case it.Err != nil:
				failed++
				fmt.Printf("%s: error: %v\n", it.Path, it.Err)
			case !it.Result.Parse.Result.Success:
				failed++
				fmt.Printf("%s: failed: %s\n", it.Path, it.Result.Parse.Result.Error)
			default:
				results = append(results, it.Result)
			}
		}
		fmt.Printf("batch done files=%d parsed=%d failed=%d\n", len(items), len(results), failed)
		if *output != "" {
			rows := pipeline.EntryRows(results)
			must(pipeline.ExportEntriesToXLSX(rows, *output))
			fmt.Printf("exported %d entries to %s\n", len(rows), *output)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := listener.NewConnector(ctx, cfg, *provider, logger)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d unchanged=%d\n", *provider, result.Fetched, result.Stored, result.Unchanged)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		a.Start(ctx)
		if strings.TrimSpace(*messageID) != "" {
			res, err := a.Processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d documents=%d\n", res.EmailID, len(res.Documents))
			return
		}
		emails, docs, err := a.Processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d documents=%d\n", emails, docs)
	case "mail:listen":
		a.Start(ctx)
		must(listener.NewService(db, cfg, a.Processor, logger).Run(ctx))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id, 0 for every document")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		var id *int
		if *emailID != 0 {
			id = emailID
		}
		rows, err := db.GetEntryExportRows(id)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for emailId=%d", *emailID))
		}
		must(pipeline.ExportEntriesToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "metrics:report":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		days := fs.Int("days", cfg.MetricsPeriodDays, "reporting period in days")
		out := fs.String("out", "", "optional markdown output path")
		_ = fs.Parse(os.Args[2:])
		report, err := a.Collector.QualityReport(periodDays(*days))
		must(err)
		if *out == "" {
			fmt.Print(report)
			return
		}
		must(os.MkdirAll(filepath.Dir(*out), 0o755))
		must(os.WriteFile(*out, []byte(report), 0o644))
		fmt.Printf("report written to %s\n", *out)
	case "metrics:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		days := fs.Int("days", cfg.MetricsPeriodDays, "period in days")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		records, _, _, err := a.Collector.Records(periodDays(*days))
		must(err)
		must(metrics.ExportToXLSX(records, *out))
		fmt.Printf("exported %d metric records to %s\n", len(records), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func periodDays(days int) time.Duration {
	return time.Duration(max(days, 1)) * 24 * time.Hour
}

func mimeFor(path string) string {
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
}

func printDocument(res pipeline.DocumentResult) {
	r := res.Parse.Result
	fmt.Printf("document=%s file=%s format=%s parser=%s success=%t\n",
		res.DocumentID, res.Filename, res.Parse.Info.Format, res.Parse.ParserUsed, r.Success)
	if !r.Success {
		fmt.Printf("error: %s\n", r.Error)
	}
	fmt.Printf("quality=%s score=%d document_score=%d\n", res.Quality.Rating, res.Quality.Score, metrics.ScoreDocument(res.Metrics).Score)
	for _, e := range res.Entries() {
		fmt.Printf("  %-12s %12.3f %-8s conf=%.2f %s\n", e.Category, e.Value, e.Unit, e.Confidence, e.Recommendation)
	}
	for _, rec := range res.Quality.Recommendations {
		fmt.Printf("  hint: %s\n", rec)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: esgdocs <command>")
	fmt.Println("commands:")
	fmt.Println("  run --input=file [--output=out.xlsx] [--mode=DEMO|TRIAL|PAID] [--json]")
	fmt.Println("  detect --input=file")
	fmt.Println("  batch --dir=./docs [--recursive] [--workers=4] [--output=out.xlsx]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx [--emailId=1] --out=./out/result.xlsx")
	fmt.Println("  metrics:report [--days=7] [--out=report.md]")
	fmt.Println("  metrics:export [--days=7] --out=metrics.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
