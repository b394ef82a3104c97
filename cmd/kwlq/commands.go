package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/api"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/prompt"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/scheduler"
)

const cachePurgeSchedule = "@every 1m"

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, a *app) []api.Option {
	opts := []api.Option{
		api.WithModules(a.modules),
		api.WithStatsSource("phase", func() any { return a.pipeline.Stats().Snapshot() }),
		api.WithStatsSource("resultCache", func() any { return a.pipeline.CacheStats() }),
		api.WithStatsSource("prompts", func() any { return a.prompts.Stats() }),
		api.WithStatsSource("writer", func() any { return a.writer.Stats() }),
	}
	if config.APIAddr != "" {
		opts = append(opts, api.WithAddr(config.APIAddr))
	}
	return opts
}

// scheduleMaintenance registers the stats report and cache purge jobs.
func scheduleMaintenance(s *scheduler.Scheduler, config Config, a *app) error {
	if err := s.AddJob("stats-report", config.StatsSchedule, func() {
		a.pipeline.Report()
		ws := a.writer.Stats()
		ps := a.prompts.Stats()
		slog.Info("persistence stats", "written", ws.Written, "retried", ws.Retried, "dropped", ws.Dropped, "pending", ws.Pending)
		slog.Info("prompt stats", "full", ps.FullBuilds, "incremental", ps.IncrementalBuilds,
			"phaseTransitions", ps.PhaseTransitions, "modelTransitions", ps.ModelTransitions, "trackedStates", ps.TrackedStates)
	}); err != nil {
		return err
	}
	return s.AddJob("cache-purge", cachePurgeSchedule, func() {
		if n := a.pipeline.PurgeExpired(); n > 0 {
			slog.Debug("cache-purge: expired results removed", "count", n)
		}
	})
}

func newServeCmd(config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *config)
		},
	}
	cmd.Flags().StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	cmd.Flags().StringVar(&config.StatsSchedule, "stats-schedule", config.StatsSchedule, "cron schedule of the stats report (overrides $STATS_REPORT_SCHEDULE)")
	return cmd
}

func runServe(ctx context.Context, config Config) error {
	a, err := buildApp(ctx, config)
	if err != nil {
		return err
	}
	defer a.Close()

	if config.PromptConfig != "" {
		w, err := prompt.NewWatcher(config.PromptConfig, a.modules, a.templates)
		if err != nil {
			slog.Warn("runServe: prompt config hot reload disabled", "error", err)
		} else {
			w.Start(ctx)
			defer w.Close()
		}
	}

	sched := scheduler.NewScheduler()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()
	if err := scheduleMaintenance(sched, config, a); err != nil {
		return err
	}

	srv, err := api.NewServer(a.pipeline, a.prompts, buildAPIOptions(config, a)...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newLambdaCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve the API as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), *config)
			if err != nil {
				return err
			}
			defer a.Close()
			srv, err := api.NewServer(a.pipeline, a.prompts, buildAPIOptions(*config, a)...)
			if err != nil {
				return err
			}
			h, err := api.NewLambdaHandler(srv.Handler())
			if err != nil {
				return err
			}
			lambda.Start(h.Handle)
			return nil
		},
	}
}

// decodeClassifyInput accepts either a full request object or a bare message list.
func decodeClassifyInput(data []byte, conversationID int64) (models.AnalyzeConversationRequest, error) {
	var req models.AnalyzeConversationRequest
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &req.Messages); err != nil {
			return req, fmt.Errorf("decode messages: %w", err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if conversationID > 0 {
		req.ConversationID = conversationID
	}
	return req, req.Validate()
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newClassifyCmd(config *Config) *cobra.Command {
	var conversationID int64
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify the KWLQ phase of a conversation read from a JSON file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			req, err := decodeClassifyInput(data, conversationID)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), *config)
			if err != nil {
				return err
			}
			defer a.Close()

			analysis := a.pipeline.Classify(cmd.Context(), req.ConversationID, req.Messages)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(analysis)
		},
	}
	cmd.Flags().Int64Var(&conversationID, "conversation-id", 0, "conversation id (required when the input is a bare message list)")
	return cmd
}

func newPromptCmd(config *Config) *cobra.Command {
	var (
		modelID        string
		conversationID int64
		memories       []string
		searchResults  []string
	)
	cmd := &cobra.Command{
		Use:   "prompt [user input...]",
		Short: "Build the system prompt for the next turn of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if input == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
				input = strings.TrimRight(string(data), "\n")
			}
			req := models.GeneratePromptRequest{ModelID: modelID, ConversationID: conversationID, UserInput: input}
			if err := req.Validate(); err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), *config)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.prompts.BuildPrompt(cmd.Context(), prompt.BuildRequest{
				ModelID:         req.ModelID,
				ConversationID:  req.ConversationID,
				UserInput:       req.UserInput,
				ContextMemories: memories,
				SearchResults:   searchResults,
			})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "", "model id the prompt is built for")
	cmd.Flags().Int64Var(&conversationID, "conversation-id", 0, "conversation id")
	cmd.Flags().StringArrayVar(&memories, "memory", nil, "context memory (repeatable)")
	cmd.Flags().StringArrayVar(&searchResults, "search-result", nil, "search result (repeatable)")
	return cmd
}
