/*
Package cli provides command-line interface utilities for the aegis command.

Output Formatting:

Results can be printed as text, JSON, CSV or JUnit XML. Text and CSV output
need the result to implement Tabular; JUnit output needs JUnitReporter.

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr, "Benchmark", "cases")
	progress.Start(int64(len(cases)))
	for i := range cases {
		// Run the case
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Exit Codes:

ExitCode maps command errors to process exit codes. A VerdictError, used by
`aegis evaluate --fail-on`, exits with ExitVerdict.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
