package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// partitionFlags select the partition a command works on.
type partitionFlags struct {
	collection string
	source     string
	model      string
	apiURL     string
	apiKey     string
	keepAlive  bool
}

func (p *partitionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.collection, "collection", "c", "", "collection id")
	p.bindSource(cmd)
}

func (p *partitionFlags) bindSource(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.source, "source", "s", "", "embedding source (default from config)")
	cmd.Flags().StringVar(&p.model, "model", "", "embedding model override")
	cmd.Flags().StringVar(&p.apiURL, "api-url", "", "embedding API URL override")
	cmd.Flags().StringVar(&p.apiKey, "api-key", "", "embedding API key override")
	cmd.Flags().BoolVar(&p.keepAlive, "keep-alive", false, "keep the model loaded (ollama)")
}

func (p *partitionFlags) request(cfg *config.Config, collectionID string) collection.Request {
	source := p.source
	if source == "" {
		source = cfg.Vectors.DefaultSource
	}
	return collection.Request{
		CollectionID: collectionID,
		Source:       source,
		Settings: embedding.SourceSettings{
			Model:     p.model,
			APIURL:    p.apiURL,
			APIKey:    p.apiKey,
			KeepAlive: p.keepAlive,
		},
	}
}

// withComponents loads config, builds the components, runs fn and closes everything. The context
// passed to fn is cancelled on SIGINT or SIGTERM.
func (o *options) withComponents(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error) error {
	cfg, _, logger, err := o.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close components", zap.Error(err))
		}
	}()
	ctx, stop := signalContext(cmd)
	defer stop()
	return fn(ctx, cfg, components, logger)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newInsertCommand(opts *options) *cobra.Command {
	var (
		pf         partitionFlags
		file       string
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Embed and store chunks read from a JSONL file",
		Long: `Reads one {"hash": ..., "text": ..., "index": ...} object per line and stores each chunk
in the collection's partition. Use --file - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open chunks: %w", err)
				}
				defer f.Close()
				in = f
			}
			items, err := readChunks(in)
			if err != nil {
				return fmt.Errorf("read chunks: %w", err)
			}
			return opts.withComponents(cmd, func(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
				var insertOpts []collection.InsertOption
				if !noProgress {
					insertOpts = append(insertOpts, collection.WithProgress(progressReporter(cmd.ErrOrStderr())))
				}
				req := pf.request(cfg, pf.collection)
				if err := c.Manager.Insert(ctx, req, items, insertOpts...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d chunks into %s (%s)\n", len(items), req.CollectionID, req.Source)
				return nil
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSONL file of chunks, or - for stdin")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// progressReporter draws a bar on w, created lazily on the first callback when the total is known.
func progressReporter(w io.Writer) func(done, total int) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		_ = bar.Set(done)
	}
}

func newListCommand(opts *options) *cobra.Command {
	var (
		pf     partitionFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the hashes stored in a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			return opts.withComponents(cmd, func(ctx context.Context, cfg *config.Config, c *Components, _ *zap.Logger) error {
				hashes, err := c.Manager.ListHashes(ctx, pf.request(cfg, pf.collection))
				if err != nil {
					return err
				}
				return WriteHashes(cmd.OutOrStdout(), hashes, format)
			})
		},
	}
	pf.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "delete <hash>...",
		Short: "Delete the chunks with the given hashes from a collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := parseHashes(args)
			if err != nil {
				return err
			}
			return opts.withComponents(cmd, func(ctx context.Context, cfg *config.Config, c *Components, _ *zap.Logger) error {
				return c.Manager.Delete(ctx, pf.request(cfg, pf.collection), hashes)
			})
		},
	}
	pf.bind(cmd)
	return cmd
}

func parseHashes(args []string) ([]int64, error) {
	hashes := make([]int64, 0, len(args))
	for _, a := range args {
		h, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid hash %q: %w", a, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

func newQueryCommand(opts *options) *cobra.Command {
	var (
		pf          partitionFlags
		collections []string
		topK        int
		threshold   float64
		output      string
	)
	cmd := &cobra.Command{
		Use:   "query [flags] <text>",
		Short: "Find the chunks nearest to a text",
		Long: `Query is all remaining arguments joined by spaces. Repeat --collection to rank several
collections together; the top-k limit then applies across all of them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			text := strings.TrimSpace(strings.Join(args, " "))
			return opts.withComponents(cmd, func(ctx context.Context, cfg *config.Config, c *Components, _ *zap.Logger) error {
				if len(collections) == 1 {
					result, err := c.Manager.Query(ctx, pf.request(cfg, collections[0]), text, topK, threshold)
					if err != nil {
						return err
					}
					return WriteQueryResult(cmd.OutOrStdout(), result, format)
				}
				result, err := c.Manager.QueryMulti(ctx, pf.request(cfg, ""), collections, text, topK, threshold)
				if err != nil {
					return err
				}
				return WriteMultiQueryResult(cmd.OutOrStdout(), collections, result, format)
			})
		},
	}
	pf.bindSource(cmd)
	cmd.Flags().StringSliceVarP(&collections, "collection", "c", nil, "collection id (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newPurgeCommand(opts *options) *cobra.Command {
	var collectionID string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete a collection under every source and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				if err := c.Manager.Purge(ctx, collectionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", collectionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&collectionID, "collection", "c", "", "collection id")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newPurgeAllCommand(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-all",
		Short: "Delete every stored vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("purge-all deletes every collection; pass --yes to confirm")
			}
			return opts.withComponents(cmd, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				if err := c.Manager.PurgeAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Purged all collections")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
