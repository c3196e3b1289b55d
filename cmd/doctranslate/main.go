package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docflow/internal/config"
	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/models"
	"github.com/Lllllllleong/docflow/internal/services"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "doctranslate",
		Short: "Batch-translate PDF documents stored in Cloud Storage",
		Long: `doctranslate extracts PDFs from a Cloud Storage bucket to markdown,
translates them into one or more languages and writes the results back as
<name>_<Language>.pdf (or .md).

Commands:
  list      List PDF documents in a bucket
  buckets   List buckets of the configured project
  run       Translate documents into the given languages
  models    List models offered by an OpenAI-compatible endpoint

Settings come from defaults, the YAML file given by --config (or
DOCFLOW_CONFIG), and environment variables, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if configPath != "" {
				return os.Setenv(config.FileEnv, configPath)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newListCmd(),
		newBucketsCmd(),
		newRunCmd(),
		newModelsCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newListCmd() *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List PDF documents in a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if bucket == "" {
				bucket = cfg.SourceBucket
			}
			if bucket == "" {
				return fmt.Errorf("no bucket given; use --bucket or SOURCE_BUCKET")
			}

			client, err := storage.NewClient(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create storage client: %w", err)
			}
			defer client.Close()

			docs, err := gcp.NewBucket(client, bucket).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Printf("No PDF documents in gs://%s\n", bucket)
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tLAST MODIFIED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Key, d.Size, d.LastModified.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket to list (default: SOURCE_BUCKET)")
	return cmd
}

func newBucketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List buckets of the configured project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.ProjectID == "" {
				return fmt.Errorf("PROJECT_ID must be set to list buckets")
			}
			client, err := storage.NewClient(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create storage client: %w", err)
			}
			defer client.Close()

			names, err := gcp.ListBuckets(cmd.Context(), client, cfg.ProjectID)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		source, output string
		langs, format  string
		all, asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "run [document keys...]",
		Short: "Translate documents into the given languages",
		Long: `Translate the named documents (or every PDF with --all) into each
language given by --lang. Each (document, language) pair succeeds or fails on
its own; a failed download or extraction fails every language of that document.
Interrupting the run marks the remaining pairs as failed.`,
		Example: `  doctranslate run --source docs --lang French,German report.pdf
  doctranslate run --all --lang Japanese --format markdown`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			languages := config.ParseLanguages(langs)
			if len(languages) == 0 {
				return fmt.Errorf("no languages given; available: %s", strings.Join(cfg.Languages, ", "))
			}
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one document or use --all")
			}

			batch, err := services.NewBatchFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer batch.Close()

			batch.OnProgress(func(p models.Progress, res models.TaskResult) {
				status := string(res.Status)
				if res.Status == models.TaskFailed {
					status = fmt.Sprintf("failed at %s: %s", res.Stage, res.Reason)
				}
				fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", p.Completed, p.Total, res.Task, status)
			})

			res, err := batch.Process(cmd.Context(), &models.BatchTranslateRequest{
				SourceBucket: source,
				OutputBucket: output,
				Documents:    args,
				All:          all,
				Languages:    languages,
				OutputFormat: format,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printReport(res)
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d translations failed", res.Failed, res.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source bucket (default: SOURCE_BUCKET)")
	cmd.Flags().StringVar(&output, "output", "", "Output bucket (default: OUTPUT_BUCKET, then the source bucket)")
	cmd.Flags().StringVarP(&langs, "lang", "l", "", "Target languages (comma-separated)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: pdf or markdown (default: OUTPUT_FORMAT)")
	cmd.Flags().BoolVar(&all, "all", false, "Translate every PDF in the source bucket")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	return cmd
}

func printReport(res *models.BatchTranslateResponse) {
	fmt.Printf("Run %s: %s, %d succeeded, %d failed of %d\n", res.RunID, res.Status, res.Succeeded, res.Failed, res.Total)
	for _, a := range res.Artifacts {
		fmt.Printf("  gs://%s/%s\n", a.Bucket, a.Key)
		if a.URL != "" {
			fmt.Printf("    %s\n", a.URL)
		}
	}
	if len(res.Failures) > 0 {
		fmt.Println("Failures:")
		for _, f := range res.Failures {
			fmt.Printf("  %s [%s] %s: %s\n", f.Document, f.Language, f.Stage, f.Reason)
		}
	}
}

func newModelsCmd() *cobra.Command {
	var endpoint, apiKey string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models offered by an OpenAI-compatible endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.OpenAI.Endpoint = strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
			}
			if apiKey != "" {
				cfg.OpenAI.APIKey = apiKey
			}
			ids, err := services.NewOpenAITranslator(cfg).ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint (default: API_ENDPOINT)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default: API_KEY)")
	return cmd
}
