package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/importer"
)

type rollbackOptions struct {
	Server  string
	APIKey  string
	Timeout time.Duration
}

// apiError is the error body returned by the server.
type apiError struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// Transactions live in the server process, so rollback goes through its API.
func newRollbackCmd(root *rootOptions) *cobra.Command {
	var opts rollbackOptions

	cmd := &cobra.Command{
		Use:   "rollback <transaction-id> [--server http://localhost:8080]",
		Short: "Roll back an import transaction on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Server) == "" {
				return errors.New("--server is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			res, err := requestRollback(ctx, &http.Client{Timeout: opts.Timeout}, opts.Server, opts.APIKey, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if root.JSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "transaction %s: %d deleted, %d restored\n",
					res.TransactionID, res.DeletedRecords, res.RestoredRecords)
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  %s\n", e)
				}
			}
			if !res.Success {
				return errors.New("rollback incomplete; run it again to retry")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8080", "importer server base URL")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", os.Getenv("IMPORTER_API_KEY"), "API key sent as X-API-Key (default $IMPORTER_API_KEY)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "request timeout")
	return cmd
}

func requestRollback(ctx context.Context, client *http.Client, base, apiKey, id string) (*importer.RollbackResult, error) {
	endpoint := strings.TrimRight(base, "/") + "/api/transactions/" + url.PathEscape(id) + "/rollback"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rollback request: %w", err)
	}
	defer resp.Body.Close()

	// 500 still carries a RollbackResult when the rollback ran partially.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return nil, fmt.Errorf("rollback %s: server returned %s", id, resp.Status)
		}
		return nil, fmt.Errorf("rollback %s: %s (Code: %s). %s", id, apiErr.Message, apiErr.Code, apiErr.Action)
	}

	var res importer.RollbackResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode rollback result: %w", err)
	}
	if res.TransactionID == "" {
		return nil, fmt.Errorf("rollback %s: server returned %s", id, resp.Status)
	}
	return &res, nil
}
