package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tutorrag/internal/chunker"
	"github.com/fyrsmithlabs/tutorrag/internal/extract"
)

func newChunkCmd(opts *options) *cobra.Command {
	var size, overlap int

	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Preview how a file is chunked, without contacting the server",
		Long: `Extract a file locally and print the chunks ingestion would store.

Examples:
  # Preview with the server defaults
  tutorctl chunk de-thi-hk1.pdf

  # Try a smaller window
  tutorctl chunk --size 400 --overlap 50 bai-tap.docx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", args[0], err)
			}
			doc, err := extract.New().Extract(cmd.Context(), args[0], content)
			if err != nil {
				return err
			}
			c, err := chunker.New(chunker.WithSize(size), chunker.WithOverlap(overlap))
			if err != nil {
				return err
			}
			chunks := c.Split(doc.Text)

			out := cmd.OutOrStdout()
			if opts.json {
				type jsonChunk struct {
					Index   int    `json:"index"`
					Content string `json:"content"`
				}
				list := make([]jsonChunk, len(chunks))
				for i, ch := range chunks {
					list[i] = jsonChunk{Index: ch.Index, Content: ch.Content}
				}
				return writeJSON(out, map[string]any{"title": doc.Title, "chunks": list})
			}

			fmt.Fprintf(out, "Title:  %s\n", doc.Title)
			fmt.Fprintf(out, "Chunks: %d\n", len(chunks))
			for _, ch := range chunks {
				fmt.Fprintf(out, "\n--- chunk %d (%d chars) ---\n%s\n", ch.Index, utf8.RuneCountInString(ch.Content), ch.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", chunker.DefaultChunkSize, "chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "overlap between chunks in characters")
	return cmd
}

func newIngestCmd(opts *options) *cobra.Command {
	var (
		docID   string
		title   string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a pdf, docx, txt or md file for ingestion",
		Long: `Upload a file to the server, which extracts, chunks, embeds and stores it.

Examples:
  # Ingest with a generated document id
  tutorctl ingest chuong2-ham-so.pdf

  # Re-ingest a document in place
  tutorctl ingest --id ham-so --replace chuong2-ham-so.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !extract.Supported(args[0]) {
				return fmt.Errorf("%s: %w", args[0], extract.ErrUnsupportedFormat)
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", args[0], err)
			}

			body, err := newClient(opts.server, 5*time.Minute).upload("/api/v1/rag/documents/upload", args[0], content, map[string]string{
				"document_id":      docID,
				"title":            title,
				"replace_existing": formBool(replace),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printRaw(out, body)
			}

			var res struct {
				DocumentID    string `json:"document_id"`
				Chunks        int    `json:"chunks"`
				TokenEstimate int    `json:"token_estimate"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Fprintf(out, "Ingested %s: %d chunks (~%d tokens)\n", res.DocumentID, res.Chunks, res.TokenEstimate)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "id", "", "document id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "document title (taken from the file when empty)")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace chunks previously stored under --id")
	return cmd
}

func newRetrieveCmd(opts *options) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve stored chunks similar to a query",
		Long: `Embed a query on the server and print the most similar chunks.

Examples:
  tutorctl retrieve "phương trình bậc hai"
  tutorctl retrieve --count 8 --json "đạo hàm"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			body, err := newClient(opts.server, time.Minute).postJSON("/api/v1/rag/retrieve", map[string]any{
				"query":       query,
				"match_count": count,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printRaw(out, body)
			}

			var res struct {
				Matches []map[string]any `json:"matches"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			if len(res.Matches) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}
			for i, m := range res.Matches {
				fmt.Fprintf(out, "%d.", i+1)
				if sim, ok := m["similarity"].(float64); ok {
					fmt.Fprintf(out, " [%.3f]", sim)
				}
				if id, ok := m["doc_id"].(string); ok {
					fmt.Fprintf(out, " %s", id)
				}
				fmt.Fprintf(out, "\n%s\n\n", m["content"])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of matches (server default when 0)")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check tutorrag server health",
		Long: `Check the health status of the tutorrag HTTP server.

Examples:
  tutorctl health
  tutorctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient(opts.server, 5*time.Second).get("/health")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return printRaw(out, body)
			}
			var res struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			fmt.Fprintf(out, "Server Status: %s\n", res.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.server)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRaw(w io.Writer, body []byte) error {
	_, err := fmt.Fprintln(w, strings.TrimSpace(string(body)))
	return err
}
