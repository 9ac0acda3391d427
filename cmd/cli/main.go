package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	configFile  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "offline-mirror",
		Short: "Offline mirror CLI - save course content for offline viewing",
		Long: `A command-line interface for mirroring course pages and attachments
into the offline folder layout, either locally or through the sync server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	// local commands
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(attachmentCmd)
	rootCmd.AddCommand(folderCmd)

	// server client commands
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// callServer sends a JSON request and decodes the response into out. Any
// status other than expected is returned as an error carrying the body.
func callServer(method, path string, payload interface{}, expected int, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != expected {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a page or attachment on the sync server",
	Long: `Queue a sync job. With --file the HTML page body is submitted as a page
job; with --url a single attachment job is submitted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		res, err := readResourceFlags(cmd)
		exitOnError(err)
		file, _ := cmd.Flags().GetString("file")
		baseURL, _ := cmd.Flags().GetString("base-url")
		attachmentURL, _ := cmd.Flags().GetString("url")

		var (
			path    string
			payload map[string]string
		)
		switch {
		case file != "" && attachmentURL != "":
			exitOnError(fmt.Errorf("--file and --url are mutually exclusive"))
		case file != "":
			html, err := readHTML(file)
			exitOnError(err)
			path = "/api/v1/sync/pages"
			payload = map[string]string{
				"course_id":   res.courseID,
				"resource_id": res.resourceID,
				"section":     res.section,
				"base_url":    baseURL,
				"html":        html,
			}
		case attachmentURL != "":
			path = "/api/v1/sync/attachments"
			payload = map[string]string{
				"course_id":   res.courseID,
				"resource_id": res.resourceID,
				"section":     res.section,
				"url":         attachmentURL,
			}
		default:
			exitOnError(fmt.Errorf("one of --file or --url is required"))
		}

		var job map[string]interface{}
		exitOnError(callServer(http.MethodPost, path, payload, http.StatusCreated, &job))

		fmt.Printf("Sync job queued!\n")
		fmt.Printf("ID: %s\n", job["id"])
		fmt.Printf("Status: %s\n", job["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		query := url.Values{}
		for _, name := range []string{"status", "course", "section"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				key := name
				if name == "course" {
					key = "course_id"
				}
				query.Set(key, v)
			}
		}

		path := "/api/v1/sync/jobs"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var jobs []map[string]interface{}
		exitOnError(callServer(http.MethodGet, path, nil, http.StatusOK, &jobs))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tCOURSE\tRESOURCE\tSTATUS\tASSETS\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%v/%v\t%s\n",
				truncate(fmt.Sprint(j["id"]), 8),
				j["kind"],
				j["course_id"],
				fmt.Sprintf("%v-%v", j["section"], j["resource_id"]),
				j["status"],
				j["assets_failed"],
				j["assets_total"],
				j["created_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats map[string]interface{}
		exitOnError(callServer(http.MethodGet, "/api/v1/sync/jobs/stats", nil, http.StatusOK, &stats))

		fmt.Println("Sync Statistics:")
		fmt.Printf("  Total:      %v\n", stats["total"])
		fmt.Printf("  Queued:     %v\n", stats["queued"])
		fmt.Printf("  Processing: %v\n", stats["processing"])
		fmt.Printf("  Completed:  %v\n", stats["completed"])
		fmt.Printf("  Failed:     %v\n", stats["failed"])
		fmt.Printf("  Cancelled:  %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get sync job details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var job map[string]interface{}
		exitOnError(callServer(http.MethodGet, "/api/v1/sync/jobs/"+args[0], nil, http.StatusOK, &job))

		fmt.Printf("Sync Job Details:\n")
		fmt.Printf("  ID:       %s\n", job["id"])
		fmt.Printf("  Kind:     %s\n", job["kind"])
		fmt.Printf("  Course:   %s\n", job["course_id"])
		fmt.Printf("  Resource: %s-%s\n", job["section"], job["resource_id"])
		fmt.Printf("  Status:   %s\n", job["status"])
		fmt.Printf("  Retries:  %v\n", job["retry_count"])
		fmt.Printf("  Assets:   %v (%v kept online)\n", job["assets_total"], job["assets_failed"])
		fmt.Printf("  Created:  %s\n", job["created_at"])
		if job["source_url"] != nil {
			fmt.Printf("  Source:   %s\n", job["source_url"])
		}
		if job["result_path"] != nil {
			fmt.Printf("  Result:   %s\n", job["result_path"])
		}
		if job["error_message"] != nil {
			fmt.Printf("  Error:    %s\n", job["error_message"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a sync job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(callServer(http.MethodPost, "/api/v1/sync/jobs/"+args[0]+"/cancel", nil, http.StatusOK, nil))
		fmt.Println("Sync job cancelled")
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or cancelled sync job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(callServer(http.MethodPost, "/api/v1/sync/jobs/"+args[0]+"/retry", nil, http.StatusOK, nil))
		fmt.Println("Sync job queued for retry")
	},
}

func init() {
	addResourceFlags(submitCmd)
	submitCmd.Flags().StringP("file", "f", "", "HTML file with the page body (- for stdin)")
	submitCmd.Flags().String("base-url", "", "URL the page was loaded from")
	submitCmd.Flags().StringP("url", "u", "", "Attachment URL")

	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().StringP("course", "c", "", "Filter by course ID")
	listCmd.Flags().String("section", "", "Filter by section")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
