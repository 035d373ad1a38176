package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/app"
	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/queries"
)

type queryFlags struct {
	start     string
	end       string
	reference string
	column    string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "earliest publish date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "latest publish date, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.reference, "reference", "", "CSV of newsroom sites (default queries.reference_file)")
	cmd.Flags().StringVar(&f.column, "column", "", "CSV column holding newsroom sites (default queries.column)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func (f *queryFlags) build(st *state) ([]collector.Query, error) {
	reference := f.reference
	if reference == "" {
		reference = st.cfg.Queries.ReferenceFile
	}
	column := f.column
	if column == "" {
		column = st.cfg.Queries.Column
	}
	newsrooms, err := queries.LoadNewsroomsFile(reference, column)
	if err != nil {
		return nil, err
	}
	return queries.New(st.logger.Named("queries")).Generate(newsrooms, f.start, f.end)
}

func newSERPCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "serp",
		Short: "Walk search results for every newsroom and write the result links",
		RunE: withState(func(cmd *cobra.Command, st *state, _ []string) error {
			qs, err := flags.build(st)
			if err != nil {
				return err
			}
			report, err := st.pipelines.CollectSERP(cmd.Context(), qs)
			printReport(cmd.OutOrStdout(), report)
			return err
		}),
	}
	flags.register(cmd)
	return cmd
}

func newScrapeCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Scrape article pages into content records",
		Long: `scrape extracts every URL given as an argument or listed in --input.
--input accepts a search results CSV (its link column is used) or a plain
file with one URL per line.`,
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			urls := append([]string(nil), args...)
			if input != "" {
				fromFile, err := readURLs(input)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no urls given: pass them as arguments or with --input")
			}
			report, err := st.pipelines.ScrapeContent(cmd.Context(), urls)
			printReport(cmd.OutOrStdout(), report)
			return err
		}),
	}
	cmd.Flags().StringVar(&input, "input", "", "file of URLs to scrape")
	return cmd
}

func newRunCmd() *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the SERP phase, then scrape every link it found",
		RunE: withState(func(cmd *cobra.Command, st *state, _ []string) error {
			qs, err := flags.build(st)
			if err != nil {
				return err
			}
			serpReport, err := st.pipelines.CollectSERP(cmd.Context(), qs)
			printReport(cmd.OutOrStdout(), serpReport)
			if err != nil {
				return err
			}
			if len(serpReport.Links) == 0 {
				st.logger.Warn("serp phase found no links; skipping content phase", zap.String("run_id", serpReport.RunID))
				return nil
			}
			contentReport, err := st.pipelines.ScrapeContent(cmd.Context(), serpReport.Links)
			printReport(cmd.OutOrStdout(), contentReport)
			return err
		}),
	}
	flags.register(cmd)
	return cmd
}

func printReport(w io.Writer, report app.RunReport) {
	if report.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s: %s\n", report.RunID, report.Status)
	fmt.Fprint(w, report.Summary)
	if n := len(report.FailedQueries); n > 0 {
		fmt.Fprintf(w, "  failed queries: %d\n", n)
	}
	if report.AlreadyProcessed > 0 {
		fmt.Fprintf(w, "  already processed: %d\n", report.AlreadyProcessed)
	}
}
