package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmbento/omnicall-ai/internal/client"
)

var (
	ingestTenant    string
	ingestCartridge string
	ingestRemote    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Split documents into paragraphs and store them for a cartridge",
	Long: `Split documents into paragraphs, embed them and store them so that the
cartridge's sessions can retrieve them.

By default the files are ingested in process against the configured store.
With --remote they are uploaded to the server as background jobs and a
progress view follows each job.

Examples:
  omnicall ingest faq.md rooms.md --cartridge h-concierge-1
  omnicall ingest tariffs.pdf.txt --cartridge f-bank-1 --tenant acme --remote`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "document owner (default: --user)")
	addCartridgeFlag(ingestCmd, &ingestCartridge)
	ingestCmd.Flags().BoolVar(&ingestRemote, "remote", false, "upload to the server instead of ingesting locally")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tenant := ingestTenant
	if tenant == "" {
		tenant = userID
	}

	if ingestRemote {
		var (
			labels []string
			jobs   []*client.Job
		)
		for _, path := range args {
			up, err := apiClient.UploadFile(ctx, tenant, ingestCartridge, path, true)
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			if up.Job == nil {
				fmt.Println(up.Message)
				continue
			}
			labels = append(labels, filepath.Base(path))
			jobs = append(jobs, up.Job)
		}
		return RunJobProgress(apiClient, labels, jobs)
	}

	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	job := a.Jobs.CreateJob("ingest", ingestCartridge, args)
	res, err := a.Ingester.IngestFiles(ctx, a.Jobs, job, tenant, ingestCartridge, args, a.Config.IngestConcurrency)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("Ingested %d file(s) into %s: %d chunks", res.FilesProcessed, ingestCartridge, res.ChunksCreated)
	if res.FilesFailed > 0 {
		fmt.Printf(", %d failed", res.FilesFailed)
	}
	fmt.Println()
	if verbose {
		for _, d := range res.Documents {
			fmt.Printf("  %s: %d/%d paragraphs stored\n", d.Filename, d.Stored, d.Paragraphs)
		}
	}
	for _, e := range res.Errors {
		fmt.Printf("  ! %s\n", e)
	}
	return nil
}
