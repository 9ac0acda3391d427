package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/app"
	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/internal/infrastructure"
	"github.com/yourusername/offline-mirror-go/internal/offline"
	"github.com/yourusername/offline-mirror-go/pkg/logger"
)

type resourceFlags struct {
	courseID   string
	resourceID string
	section    string
}

func addResourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("course", "c", "", "Course ID")
	cmd.Flags().StringP("resource", "r", "", "Resource ID")
	cmd.Flags().StringP("section", "s", string(domain.SectionPages), "Section name")
	cmd.MarkFlagRequired("course")
	cmd.MarkFlagRequired("resource")
}

func readResourceFlags(cmd *cobra.Command) (resourceFlags, error) {
	var res resourceFlags
	res.courseID, _ = cmd.Flags().GetString("course")
	res.resourceID, _ = cmd.Flags().GetString("resource")
	res.section, _ = cmd.Flags().GetString("section")
	if !domain.ValidateSection(domain.Section(res.section)) {
		return res, fmt.Errorf("invalid section: %s", res.section)
	}
	return res, nil
}

func readHTML(file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

// localEnv holds everything a one-shot local command needs
type localEnv struct {
	config  *domain.Config
	log     *zap.Logger
	fetcher *offline.ContentFetcher
}

func newLocalEnv(cmd *cobra.Command, section domain.Section) (*localEnv, error) {
	config, err := app.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if docs, _ := cmd.Flags().GetString("documents-dir"); docs != "" {
		config.Offline.DocumentsDir = docs
	}
	if session, _ := cmd.Flags().GetString("session"); session != "" {
		config.Offline.SessionID = session
	}

	// stdout carries command output
	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, err
	}

	tasks := infrastructure.NewHTTPTaskProvider(&config.Fetch, log)
	resolver := infrastructure.NewCanvasFileResolver(tasks, log)
	fetcher := offline.NewContentFetcher(tasks, resolver, afero.NewOsFs(), offline.FetcherConfig{
		DocumentsDir: config.Offline.DocumentsDir,
		SessionID:    config.Offline.SessionID,
		Section:      section,
	}, log)

	return &localEnv{config: config, log: log, fetcher: fetcher}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addLocalFlags(cmd *cobra.Command) {
	addResourceFlags(cmd)
	cmd.Flags().String("documents-dir", "", "Override offline.documents_dir")
	cmd.Flags().String("session", "", "Override offline.session_id")
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Mirror an HTML page body locally and print the rewritten HTML",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		res, err := readResourceFlags(cmd)
		exitOnError(err)
		file, _ := cmd.Flags().GetString("file")
		html, err := readHTML(file)
		exitOnError(err)

		req := domain.RewriteRequest{
			HTMLContent: html,
			CourseID:    res.courseID,
			ResourceID:  res.resourceID,
		}
		if raw, _ := cmd.Flags().GetString("base-url"); raw != "" {
			base, err := url.Parse(raw)
			if err != nil || !base.IsAbs() {
				exitOnError(fmt.Errorf("invalid base URL: %s", raw))
			}
			req.BaseURL = base
		}

		env, err := newLocalEnv(cmd, domain.Section(res.section))
		exitOnError(err)
		defer env.log.Sync()

		ctx, stop := signalContext()
		defer stop()

		rewriter := offline.NewHTMLRewriter(env.fetcher, env.config.Fetch.Concurrency, env.log)
		result, err := rewriter.Rewrite(ctx, req)
		exitOnError(err)

		fmt.Println(result.HTML)
		fmt.Fprintf(os.Stderr, "Saved %s (%d assets, %d kept online)\n",
			result.BodyPath, result.AssetsTotal, result.AssetsFailed)
	},
}

var attachmentCmd = &cobra.Command{
	Use:   "attachment [url]",
	Short: "Download a single attachment into the offline layout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := readResourceFlags(cmd)
		exitOnError(err)

		env, err := newLocalEnv(cmd, domain.Section(res.section))
		exitOnError(err)
		defer env.log.Sync()

		ctx, stop := signalContext()
		defer stop()

		downloader := offline.NewAttachmentDownloader(env.fetcher, env.log)
		localPath, err := downloader.DownloadAttachment(ctx, args[0], res.courseID, res.resourceID)
		exitOnError(err)

		fmt.Println(localPath)
	},
}

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Print the offline folder of a resource",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		res, err := readResourceFlags(cmd)
		exitOnError(err)

		session, _ := cmd.Flags().GetString("session")
		if session == "" {
			config, err := app.LoadConfig(configFile)
			exitOnError(err)
			session = config.Offline.SessionID
		}

		rel := domain.FolderPath(session, res.courseID, domain.Section(res.section), res.resourceID)
		fmt.Println(filepath.FromSlash(rel))
	},
}

func init() {
	addLocalFlags(rewriteCmd)
	rewriteCmd.Flags().StringP("file", "f", "-", "HTML file with the page body (- for stdin)")
	rewriteCmd.Flags().String("base-url", "", "URL the page was loaded from")

	addLocalFlags(attachmentCmd)

	addResourceFlags(folderCmd)
	folderCmd.Flags().String("session", "", "Override offline.session_id")
}
