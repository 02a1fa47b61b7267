package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcshock/respipe/observer"
	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/request"
)

// batchLine is one JSON line of batch output.
type batchLine struct {
	URL     string       `json:"url"`
	Outcome string       `json:"outcome"`
	Bag     pipeline.Bag `json:"bag,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func newBatchCmd(root *rootFlags) *cobra.Command {
	var (
		pipelineName string
		concurrency  int
	)
	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Send many GET requests concurrently, one URL per line",
		Long: `Reads URLs (one per line; blank lines and # comments are skipped) from a
file or stdin and runs the pipeline on each response. Prints one JSON line
per URL in input order. Concurrency and rate come from batch settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, root)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			p, err := a.pipeline(pipelineName)
			if err != nil {
				return err
			}
			urls, err := readURLs(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			reqs := make([]request.Request, len(urls))
			for i, u := range urls {
				reqs[i] = a.request(u)
			}
			limit := a.settings.Batch.Concurrency
			if concurrency > 0 {
				limit = concurrency
			}

			outcomes := a.exec.ExecuteAll(cmd.Context(), reqs, p, nil, limit)
			enc := json.NewEncoder(a.out)
			for _, o := range outcomes {
				line := batchLine{URL: o.Request.URL, Outcome: observer.Outcome(o.Err), Bag: o.Bag}
				if o.Err != nil {
					line.Bag = nil
					line.Error = o.Err.Error()
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			if failed := len(request.Errors(outcomes)); failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelineName, "pipeline", "P", "status", "pipeline to run on each response")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "max concurrent requests (overrides batch.concurrency)")
	return cmd
}

func readURLs(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}
