package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"marketintel/internal/payload"
	"marketintel/internal/queueaccess"
)

type submitFlags struct {
	file      string
	projectID string
	requestID string
	userID    string
	keywords  []string
	sources   []string
	mode      string
	threshold float64
	priority  string
	strategy  string
	prompt    string
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a market intelligence request",
		Long: "Submit a request from flags or from a JSON document (--file, '-' for stdin).\n" +
			"Sources use the form name,url[,type]; the type defaults to news.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd, flags)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				result, err := access.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Accepted %s\n", result.ScopeKey)
				fmt.Fprintf(out, "Intake item %s at %s\n", result.SequenceKey, result.AcceptedAt)
				if !access.Remote() {
					fmt.Fprintln(out, "Daemon not running; the request waits in the queue until it starts or `marketintel drain` runs")
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "Read the request from a JSON file ('-' for stdin)")
	f.StringVar(&flags.projectID, "project", "", "Project identifier")
	f.StringVar(&flags.requestID, "request-id", "", "Request identifier (generated when empty)")
	f.StringVar(&flags.userID, "user", "", "Submitting user")
	f.StringSliceVarP(&flags.keywords, "keyword", "k", nil, "Keyword to research (repeatable)")
	f.StringArrayVarP(&flags.sources, "source", "s", nil, "Source as name,url[,type] (repeatable)")
	f.StringVar(&flags.mode, "mode", "", "Extraction mode: summary, full or structured")
	f.Float64Var(&flags.threshold, "quality-threshold", 0, "Minimum quality threshold between 0 and 1")
	f.StringVar(&flags.priority, "priority", "", "Priority: high, medium or low")
	f.StringVar(&flags.strategy, "strategy", "", "Processing strategy: table, stream or batch")
	f.StringVar(&flags.prompt, "prompt", "", "Extra analysis instructions")
	return cmd
}

func buildRequest(cmd *cobra.Command, flags submitFlags) (payload.Request, error) {
	var req payload.Request
	if path := strings.TrimSpace(flags.file); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return req, fmt.Errorf("read request file: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse request file: %w", err)
		}
	}

	if flags.projectID != "" {
		req.ProjectID = flags.projectID
	}
	if flags.requestID != "" {
		req.RequestID = flags.requestID
	}
	if flags.userID != "" {
		req.UserID = flags.userID
	}
	for _, kw := range flags.keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			req.Keywords = append(req.Keywords, kw)
		}
	}
	for _, raw := range flags.sources {
		source, err := parseSource(raw)
		if err != nil {
			return req, err
		}
		req.Sources = append(req.Sources, source)
	}
	if flags.mode != "" {
		req.ExtractionMode = flags.mode
	}
	if cmd.Flags().Changed("quality-threshold") {
		req.QualityThreshold = flags.threshold
	}
	if flags.priority != "" {
		req.Priority = flags.priority
	}
	if flags.strategy != "" {
		req.Strategy = flags.strategy
	}
	if flags.prompt != "" {
		req.AnalysisPrompt = flags.prompt
	}

	if strings.TrimSpace(req.ProjectID) == "" {
		return req, fmt.Errorf("a project is required (--project or project_id in --file)")
	}
	return req, nil
}

func parseSource(raw string) (payload.Source, error) {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return payload.Source{}, fmt.Errorf("invalid source %q (use name,url[,type])", raw)
	}
	source := payload.Source{Name: parts[0], URL: parts[1], Type: "news"}
	if len(parts) == 3 && parts[2] != "" {
		source.Type = parts[2]
	}
	return source, nil
}
