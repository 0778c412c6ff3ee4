package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmbento/omnicall-ai/internal/client"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect the server's ingestion jobs",
	Long: `List the server's background ingestion jobs or inspect one by ID.

Examples:
  omnicall jobs           # List all jobs
  omnicall jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showJob(cmd.Context(), args[0])
	}
	return listJobs(cmd.Context())
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-14s %-12s %-10s %s\n", "ID", "CARTRIDGE", "STATUS", "PROGRESS", "STARTED")
	fmt.Println("------------------------------------------------------------------------")

	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress, job.Total)
		}
		started := job.StartedAt.Format("15:04:05")
		fmt.Printf("%-10s %-14s %-12s %-10s %s\n", job.ID, job.CartridgeID, job.Status, progress, started)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	printJob(job)
	return nil
}

func printJob(job *client.Job) {
	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Type: %s\n", job.Type)
	fmt.Printf("  Cartridge: %s\n", job.CartridgeID)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.Total > 0 {
		fmt.Printf("  Progress: %d/%d\n", job.Progress, job.Total)
	}
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	if r := job.Result; r != nil {
		fmt.Println("\nResult:")
		fmt.Printf("  Files processed: %d\n", r.FilesProcessed)
		fmt.Printf("  Files failed: %d\n", r.FilesFailed)
		fmt.Printf("  Chunks stored: %d\n", r.ChunksCreated)
		if len(r.Errors) > 0 {
			fmt.Printf("\n  Errors (%d):\n", len(r.Errors))
			for _, e := range r.Errors {
				fmt.Printf("    - %s\n", e)
			}
		}
	}
}
