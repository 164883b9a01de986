/*
Package cli provides output formatters, progress reporting and common helpers
used by the claimaudit command.

Output Formatting:

Results are printed as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, runs); err != nil {
		return err
	}

CSV output requires the value to implement Tabular. Text output renders
Tabular values as an aligned table and TextRenderer values with their own
layout.

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "files")
	progress.Start(int64(len(files)))
	for i, f := range files {
		audit(f)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
