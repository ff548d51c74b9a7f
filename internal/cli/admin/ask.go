package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docsage/internal/cli"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

// AskCmd returns the ask command
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documentation",
		Example: `  docsaged ask "How do I add a new student?"
  docsaged ask -k 5 --section Students --json "How do I add a new student?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	addRetrievalFlags(cmd)
	cmd.Flags().Bool("no-steps", false, "Ask for a Details section instead of numbered steps")
	cmd.Flags().Bool("no-references", false, "Omit the References section")
	cmd.Flags().Bool("json", false, "Print the full answer response as JSON")

	return cmd
}

// SearchCmd returns the search command
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the documents retrieved for a query",
		Example: `  docsaged search --content-type guide "grading scale"
  docsaged search --hybrid "report card"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	addRetrievalFlags(cmd)
	cmd.Flags().Bool("hybrid", false, "Combine vector similarity with full-text rank")
	cmd.Flags().Bool("json", false, "Print results as JSON")

	return cmd
}

func addRetrievalFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("top-k", "k", 0, "Number of documents to retrieve (default from DOCSAGE_TOP_K)")
	cmd.Flags().Float32("threshold", 0, "Minimum similarity score in [0,1] (default from DOCSAGE_SIMILARITY_THRESHOLD)")
	cmd.Flags().StringSlice("content-type", nil, "Restrict to content types (guide, reference, faq, tutorial, article)")
	cmd.Flags().StringSlice("section", nil, "Restrict to sections")
	cmd.Flags().StringSlice("collection", nil, "Restrict to collections")
	cmd.Flags().Bool("mock-embedding", false, "Use a deterministic mock embedding if the provider fails (requires DOCSAGE_ALLOW_MOCK_EMBEDDING)")

	cli.AnnotateEnv(cmd.Flags(), "top-k", "DOCSAGE_TOP_K")
	cli.AnnotateEnv(cmd.Flags(), "threshold", "DOCSAGE_SIMILARITY_THRESHOLD")
}

func retrieveOptionsFromFlags(cmd *cobra.Command) (service.RetrieveOptions, error) {
	var opts service.RetrieveOptions

	opts.TopK, _ = cmd.Flags().GetInt("top-k")
	if opts.TopK < 0 {
		return opts, errors.New("--top-k cannot be negative")
	}

	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat32("threshold")
		if threshold < 0 || threshold > 1 {
			return opts, fmt.Errorf("--threshold must be within [0,1], got %v", threshold)
		}
		opts.SimilarityThreshold = &threshold
	}

	types, _ := cmd.Flags().GetStringSlice("content-type")
	for _, t := range types {
		ct := domain.ContentType(strings.ToLower(strings.TrimSpace(t)))
		if !ct.IsValid() {
			return opts, fmt.Errorf("unknown content type %q", t)
		}
		opts.ContentTypes = append(opts.ContentTypes, ct)
	}

	opts.Sections, _ = cmd.Flags().GetStringSlice("section")
	opts.Collections, _ = cmd.Flags().GetStringSlice("collection")
	opts.AllowMockEmbedding, _ = cmd.Flags().GetBool("mock-embedding")
	return opts, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	opts, err := retrieveOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	req := service.AnswerRequest{
		Actor:               "cli",
		Query:               query,
		TopK:                opts.TopK,
		SimilarityThreshold: opts.SimilarityThreshold,
		ContentTypes:        opts.ContentTypes,
		Sections:            opts.Sections,
		Collections:         opts.Collections,
		AllowMockEmbedding:  opts.AllowMockEmbedding,
	}
	if noSteps, _ := cmd.Flags().GetBool("no-steps"); noSteps {
		req.IncludeSteps = boolPtr(false)
	}
	if noRefs, _ := cmd.Flags().GetBool("no-references"); noRefs {
		req.IncludeReferences = boolPtr(false)
	}

	ctx := commandContext(cmd)
	cfg, log, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	var resp *service.AnswerResponse
	err = traced(ctx, "cli ask", func(ctx context.Context) error {
		var err error
		resp, err = d.answers.Answer(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printAnswer(cmd.OutOrStdout(), resp, asJSON)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	opts, err := retrieveOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	cfg, log, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	hybrid, _ := cmd.Flags().GetBool("hybrid")
	var result *service.RetrievalResult
	err = traced(ctx, "cli search", func(ctx context.Context) error {
		var err error
		if hybrid {
			result, err = d.retriever.HybridSearch(ctx, query, service.HybridOptions{RetrieveOptions: opts})
		} else {
			result, err = d.retriever.Retrieve(ctx, query, opts)
		}
		return err
	})
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printResults(cmd.OutOrStdout(), result, asJSON)
}

func printAnswer(w io.Writer, resp *service.AnswerResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(w, resp.Answer)
	if !resp.Validation.Valid {
		fmt.Fprintf(w, "\n(answer format issues: %s)\n", strings.Join(resp.Validation.Issues, ", "))
	}
	if resp.UsedMockEmbedding {
		fmt.Fprintln(w, "\n(retrieved with a mock embedding)")
	}
	return nil
}

type searchResultOutput struct {
	Score       float32 `json:"score"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	ContentType string  `json:"content_type,omitempty"`
	Section     string  `json:"section,omitempty"`
}

func printResults(w io.Writer, result *service.RetrievalResult, asJSON bool) error {
	out := make([]searchResultOutput, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, searchResultOutput{
			Score:       r.Score,
			Title:       r.Title,
			URL:         r.URL,
			ContentType: string(r.Metadata.ContentType),
			Section:     r.Metadata.Section,
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(out) == 0 {
		fmt.Fprintln(w, "no documents matched")
		return nil
	}
	for i, r := range out {
		fmt.Fprintf(w, "%2d. [%.3f] %s\n    %s\n", i+1, r.Score, r.Title, r.URL)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func boolPtr(b bool) *bool {
	return &b
}
