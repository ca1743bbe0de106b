package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/cli"
	"github.com/hyperjump/inqdoc/internal/config"
	"github.com/hyperjump/inqdoc/internal/fileid"
	"github.com/hyperjump/inqdoc/internal/models"
	"github.com/hyperjump/inqdoc/internal/pipeline"
	"github.com/hyperjump/inqdoc/internal/server"
	"github.com/hyperjump/inqdoc/internal/storage"
	"github.com/hyperjump/inqdoc/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, cfg, logger, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer p.Close()

			if watch {
				w, err := newWatcher(p, cfg, logger)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("start watcher: %w", err)
				}
				defer w.Stop()
				go w.SyncExistingFiles()
			}

			srv := server.NewServer(p, &cfg.Server, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "also watch the document root and index changes")
	return cmd
}

func (a *app) newIngestCmd() *cobra.Command {
	var (
		opts   pipeline.IngestOptions
		title  string
		put    bool
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "ingest <key>...",
		Short: "Index documents from the document store",
		Long: `Extracts, chunks and indexes each storage key. With --put the arguments are
local files or directories that are first copied into the document store.`,
		Example: `  inqdoc ingest reports/q1.pdf
  inqdoc ingest --put --prefix handbook/ ./docs
  inqdoc ingest --chunker semantic --force notes/meeting.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, cfg, logger, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer p.Close()

			keys := args
			if put {
				if keys, err = putLocalFiles(ctx, p, args, prefix, cfg.Watch.Extensions); err != nil {
					return err
				}
			}
			if title != "" {
				opts.Metadata = &models.DocumentMetadata{Title: title}
			}

			var (
				results []*models.IngestResult
				failed  int
			)
			for _, key := range keys {
				res, err := p.IngestDocument(ctx, key, opts)
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", key, err)
					continue
				}
				results = append(results, res)
			}
			if err := cli.WriteIngestResults(cmd.OutOrStdout(), results, format); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(keys))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Chunker, "chunker", "", "chunking strategy (default from config)")
	f.StringVar(&opts.VectorStore, "store", "", "vector store (default from config)")
	f.BoolVar(&opts.Force, "force", false, "reindex even when the text is unchanged")
	f.StringVar(&title, "title", "", "document title stored with each chunk")
	f.BoolVar(&put, "put", false, "copy local files or directories into the store first")
	f.StringVar(&prefix, "prefix", "", "key prefix for files copied with --put")
	return cmd
}

// putLocalFiles copies files into the document store and returns their keys.
// Directories are walked; hidden entries and files outside extensions are skipped.
func putLocalFiles(ctx context.Context, p *pipeline.Pipeline, paths []string, prefix string, extensions []string) ([]string, error) {
	var keys []string
	put := func(file, rel string) error {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		key, err := p.PutDocument(ctx, path.Join(prefix, filepath.ToSlash(rel)), data)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	}
	for _, arg := range paths {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := put(arg, filepath.Base(arg)); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(arg, func(file string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if file != arg && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !hasExtension(file, extensions) {
				return nil
			}
			rel, err := filepath.Rel(arg, file)
			if err != nil {
				return err
			}
			return put(file, rel)
		})
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func hasExtension(file string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(file))
	for _, e := range extensions {
		if "."+strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// searchFlags are shared by search and ask.
type searchFlags struct {
	topK           int
	semanticWeight float64
	keywordWeight  float64
	noRerank       bool
	noContext      bool
	store          string
	document       string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVarP(&f.topK, "top-k", "k", 0, "number of results (default from config)")
	fl.Float64Var(&f.semanticWeight, "semantic-weight", 0, "weight of the semantic score")
	fl.Float64Var(&f.keywordWeight, "keyword-weight", 0, "weight of the keyword score")
	fl.BoolVar(&f.noRerank, "no-rerank", false, "keep vector store order")
	fl.BoolVar(&f.noContext, "no-context", false, "do not attach neighboring chunks")
	fl.StringVar(&f.store, "store", "", "vector store (default from config)")
	fl.StringVar(&f.document, "document", "", "restrict results to one document ID or storage key")
}

func (f *searchFlags) request(cmd *cobra.Command, query string) *models.SearchRequest {
	req := &models.SearchRequest{Query: query, TopK: f.topK, VectorStore: f.store}
	if cmd.Flags().Changed("semantic-weight") {
		req.SemanticWeight = &f.semanticWeight
	}
	if cmd.Flags().Changed("keyword-weight") {
		req.KeywordWeight = &f.keywordWeight
	}
	if f.noRerank {
		rerank := false
		req.Rerank = &rerank
	}
	if f.noContext {
		enhance := false
		req.EnhanceContext = &enhance
	}
	if f.document != "" {
		req.DocumentID = f.document
		if !fileid.IsDocumentID(f.document) {
			req.DocumentID = fileid.DocumentID(f.document)
		}
	}
	return req
}

func (a *app) newSearchCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Runs a hybrid search: semantic similarity blended with keyword overlap.
The query is all remaining arguments joined by spaces.`,
		Example: `  inqdoc search quarterly budget
  inqdoc search -k 3 --semantic-weight 1 --keyword-weight 0 "hiring plan"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			req := flags.request(cmd, joinArgs(args))
			ctx := cmd.Context()

			var resp *models.SearchResponse
			if a.serverURL != "" {
				resp, err = newClient(a.serverURL).Search(ctx, req)
			} else {
				resp, err = a.searchLocal(ctx, req)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) searchLocal(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	p, _, logger, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	defer p.Close()
	s := p.Settings()
	if err := req.Validate(s.Search.TopK, s.MaxTopK); err != nil {
		return nil, err
	}
	results, err := p.Search(ctx, req.Query, p.SearchOptions(req))
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Query:     req.Query,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func (a *app) newAskCmd() *cobra.Command {
	var (
		flags     searchFlags
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Example: `  inqdoc ask how did the budget change this quarter
  inqdoc ask --document reports/q1.pdf "what were the risks?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			req := flags.request(cmd, joinArgs(args))
			ctx := cmd.Context()

			var resp *models.AskResponse
			if a.serverURL != "" {
				resp, err = newClient(a.serverURL).Ask(ctx, req)
			} else {
				resp, err = a.askLocal(ctx, req, maxTokens)
			}
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), resp, format)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "prompt token budget (default from config)")
	return cmd
}

func (a *app) askLocal(ctx context.Context, req *models.SearchRequest, maxTokens int) (*models.AskResponse, error) {
	p, _, logger, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	defer p.Close()
	s := p.Settings()
	if err := req.Validate(s.ContextResults, s.MaxTopK); err != nil {
		return nil, err
	}
	opts := p.AskOptions(req)
	opts.MaxTokens = maxTokens
	return p.Ask(ctx, req.Query, opts)
}

func (a *app) newDeleteCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "delete <id-or-key>...",
		Short: "Remove documents from the index",
		Long: `Removes every chunk of each document from its vector store. Arguments may be
document IDs (doc_...) or storage keys. With --purge the stored bytes are deleted too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, logger, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer p.Close()

			var errs []error
			for _, arg := range args {
				if err := deleteOne(ctx, p, arg, purge); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", arg, err))
					continue
				}
				cmd.Printf("Deleted %s\n", arg)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the stored document bytes")
	return cmd
}

func deleteOne(ctx context.Context, p *pipeline.Pipeline, arg string, purge bool) error {
	if fileid.IsDocumentID(arg) {
		if purge {
			return errors.New("--purge needs a storage key")
		}
		return p.DeleteDocument(ctx, arg)
	}
	if err := p.DeleteStorageKey(ctx, arg); err != nil {
		return err
	}
	if purge {
		if err := p.Documents.Delete(ctx, fileid.Normalize(arg)); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (a *app) newListCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed documents, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, _, logger, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer p.Close()
			docs, err := p.ListDocuments(ctx, offset, limit)
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, format)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func (a *app) newWatchCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index changes under the document store root until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p, cfg, logger, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer p.Close()

			w, err := newWatcher(p, cfg, logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()
			if !noSync {
				w.SyncExistingFiles()
			}
			cmd.Printf("Watching %s (Ctrl+C to stop)\n", w.Root())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip indexing files already present")
	return cmd
}

// newWatcher watches the disk store root, ingesting changed keys and deleting
// removed ones.
func newWatcher(p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger) (*watcher.Watcher, error) {
	disk, ok := p.Documents.(*storage.DiskStore)
	if !ok {
		return nil, fmt.Errorf("watch needs storage.backend disk, have %q", cfg.Storage.Backend)
	}
	onChange := func(ctx context.Context, key string) error {
		_, err := p.IngestDocument(ctx, key, pipeline.IngestOptions{})
		return err
	}
	return watcher.New(disk.Root(), onChange, p.DeleteStorageKey,
		watcher.WithLogger(logger),
		watcher.WithExtensions(cfg.Watch.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithDebounce(cfg.Watch.Debounce),
	), nil
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show document counts, vector stores and providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var st *pipeline.Status
			if a.serverURL != "" {
				st, err = newClient(a.serverURL).Status(ctx)
			} else {
				st, err = a.statusLocal(ctx)
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
}

func (a *app) statusLocal(ctx context.Context) (*pipeline.Status, error) {
	p, _, logger, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	defer p.Close()
	return p.Status(ctx)
}
