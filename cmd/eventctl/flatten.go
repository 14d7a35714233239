package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"awscqrs/internal/capture"
	"awscqrs/internal/changefeed"
	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"github.com/spf13/cobra"
)

// flattened is one line of flatten output.
type flattened struct {
	EventID string         `json:"eventId"`
	Message *events.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func newFlattenCommand() *cobra.Command {
	var topicArn string

	cmd := &cobra.Command{
		Use:   "flatten [file]",
		Short: "Print the messages a change-feed batch would publish",
		Long: `Decodes a change-feed batch ({"Records":[...]}) from a file or stdin and
prints, one JSON object per line, the message each record turns into.
Deletions are omitted and malformed records are printed with their error.
Nothing is published.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runFlatten(in, cmd.OutOrStdout(), topicArn)
		},
	}
	cmd.Flags().StringVar(&topicArn, "topic-arn", "", "topic ARN stamped on every message")
	return cmd
}

func runFlatten(in io.Reader, out io.Writer, topicArn string) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	batch, err := changefeed.DecodeBatch(data)
	if err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	h := capture.NewHandler(nil, nil, topicArn, logger.NewNop())
	prepared, _, rejected := h.Normalize(batch)

	lines := make([]flattened, 0, len(prepared)+len(rejected))
	for _, p := range prepared {
		lines = append(lines, flattened{EventID: p.EventID, Message: &p.Message})
	}
	for _, r := range rejected {
		lines = append(lines, flattened{EventID: r.EventID, Error: r.Err.Error()})
	}

	enc := json.NewEncoder(out)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
