package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStatusCommand(opts *options) *cobra.Command {
	var (
		serverURL string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where vectors are stored and how much space they use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			if serverURL != "" {
				ctx, stop := signalContext(cmd)
				defer stop()
				status, err := statusViaHTTP(ctx, serverURL)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return WriteStatus(cmd.OutOrStdout(), *status, format)
			}
			return opts.withComponents(cmd, func(_ context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				status, err := localStatus(c)
				if err != nil {
					return err
				}
				return WriteStatus(cmd.OutOrStdout(), status, format)
			})
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (empty = read the store directly)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func localStatus(c *Components) (statusResponse, error) {
	sources, err := c.Store.Sources()
	if err != nil {
		return statusResponse{}, err
	}
	status := statusResponse{
		VectorsPath:    c.Store.Root(),
		Sources:        sources,
		OpenPartitions: c.Store.OpenCount(),
	}
	if diskBytes, err := c.Store.DiskUsage(); err == nil {
		status.DiskUsageBytes = diskBytes
	}
	return status, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/vector/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
