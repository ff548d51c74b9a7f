package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/api/handlers"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

const defaultIngestBatchSize = 100

// Ingester indexes crawled documents.
type Ingester interface {
	Ingest(ctx context.Context, docs []*domain.Document) (*service.IngestReport, error)
}

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Index crawled documents",
		Long: `Index crawled documentation pages from a JSON Lines file (one document per line)
or a JSON array. Reads stdin when the file is omitted or "-".

Each document needs url, title and content; raw_html, content_type, section,
subsection and collection are optional.`,
		Example: `  docsaged ingest crawl.jsonl
  crawler --json | docsaged ingest --batch-size 50 -`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().Int("batch-size", defaultIngestBatchSize, "Documents per ingestion batch")
	cmd.Flags().Bool("json", false, "Print the ingestion report as JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	payloads, err := readPayloads(in)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return errors.New("no documents to ingest")
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

	batchSize, _ := cmd.Flags().GetInt("batch-size")
	var report *service.IngestReport
	err = traced(ctx, "cli ingest", func(ctx context.Context) error {
		var err error
		report, err = ingestBatches(ctx, d.ingest, payloads, batchSize)
		return err
	})
	if err != nil {
		if report != nil {
			_ = printIngestReport(cmd.ErrOrStderr(), report, false)
		}
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printIngestReport(cmd.OutOrStdout(), report, asJSON)
}

// readPayloads accepts either a JSON array or a stream of JSON objects
// (JSON Lines). Every payload is validated before anything is indexed.
func readPayloads(r io.Reader) ([]handlers.DocumentPayload, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var payloads []handlers.DocumentPayload
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&payloads); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	} else {
		for line := 1; ; line++ {
			var p handlers.DocumentPayload
			err := dec.Decode(&p)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("invalid document %d: %w", line, err)
			}
			payloads = append(payloads, p)
		}
	}

	for i := range payloads {
		if fields := api.ValidateStruct(payloads[i]); fields != nil {
			return nil, fmt.Errorf("invalid document %d: %s", i+1, formatFields(fields))
		}
	}
	return payloads, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func formatFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for field, msg := range fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ingestBatches feeds payloads to the ingester in fixed-size batches and
// merges the per-batch reports.
func ingestBatches(ctx context.Context, ingester Ingester, payloads []handlers.DocumentPayload, batchSize int) (*service.IngestReport, error) {
	if batchSize <= 0 {
		batchSize = defaultIngestBatchSize
	}

	total := &service.IngestReport{Failed: []service.IngestFailure{}}
	for start := 0; start < len(payloads); start += batchSize {
		end := start + batchSize
		if end > len(payloads) {
			end = len(payloads)
		}

		docs := make([]*domain.Document, 0, end-start)
		for _, p := range payloads[start:end] {
			docs = append(docs, p.ToDocument())
		}

		report, err := ingester.Ingest(ctx, docs)
		if report != nil {
			total.Documents += report.Documents
			total.Indexed += report.Indexed
			total.Chunks += report.Chunks
			total.Archived += report.Archived
			total.Failed = append(total.Failed, report.Failed...)
		}
		if err != nil {
			return total, fmt.Errorf("ingestion aborted after %d documents: %w", start, err)
		}
	}
	return total, nil
}

func printIngestReport(w io.Writer, report *service.IngestReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "documents: %d\nindexed:   %d\nchunks:    %d\narchived:  %d\nfailed:    %d\n",
		report.Documents, report.Indexed, report.Chunks, report.Archived, len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  %s: %s\n", f.URL, f.Error)
	}
	return nil
}
