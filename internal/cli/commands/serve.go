package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsql/internal/cli/config"
	"github.com/leapstack-labs/leapsql/pkg/match"
)

type parseRequest struct {
	SQL     string `json:"sql"`
	Dialect string `json:"dialect,omitempty"`
}

type parseResponse struct {
	Tree  treeNode `json:"tree,omitempty"`
	Error string   `json:"error,omitempty"`
}

// NewServeCommand runs a small HTTP debug endpoint: POST a SQL statement,
// get back its parsed tree as JSON. Intended for editor integrations and
// manual exploration, not production traffic (SPEC_FULL.md's domain stack
// wires go-chi for exactly this one route).
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP debug server exposing POST /parse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			indent := config.GetIndentation(cmd.Context())

			r := chi.NewRouter()
			r.Use(middleware.Logger)
			r.Use(middleware.Recoverer)
			r.Post("/parse", handleParse(indent))

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
			slog.Info("debug server listening", slog.String("addr", addr))
			return http.ListenAndServe(addr, r)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func handleParse(indent match.IndentationConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeParseError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}

		var req parseRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeParseError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if req.Dialect == "" {
			req.Dialect = "ansi"
		}

		tree, err := ParseSQL(req.Dialect, req.SQL, indent)
		if err != nil {
			slog.Warn("parse request failed",
				slog.String("dialect", req.Dialect),
				slog.String("error", err.Error()))
			writeParseError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		_ = json.NewEncoder(w).Encode(parseResponse{Tree: tree})
	}
}

func writeParseError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(parseResponse{Error: msg})
}
