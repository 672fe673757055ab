package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/api"
	"github.com/kalambet/uniguide/internal/config"
	"github.com/kalambet/uniguide/internal/corpus"
	"github.com/kalambet/uniguide/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the assistant a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		env, err := ask(cmd.Context(), client, strings.Join(args, " "), lang)
		if err != nil {
			return err
		}

		if !env.Success {
			printWarning("%s", env.Text)
		} else {
			fmt.Println(env.Text)
		}
		if len(env.FollowUps) > 0 {
			fmt.Println()
			fmt.Println(render(styleMuted, "You might also ask:"))
			for _, f := range env.FollowUps {
				fmt.Println(render(styleMuted, "  • "+f))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("lang", answer.DefaultLanguage, "language code of the question")
}

func ask(ctx context.Context, c *apiClient, message, lang string) (answer.Envelope, error) {
	resp, err := c.post(ctx, "/api/chat", answer.Request{Message: message, Language: lang})
	if err != nil {
		return answer.Envelope{}, err
	}
	var env answer.Envelope
	if err := decodeJSON(resp, &env); err != nil {
		return answer.Envelope{}, err
	}
	return env, nil
}

// --- reindex ---

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the semantic index from the corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if async {
			job, err := reindexAsync(cmd.Context(), client)
			if err != nil {
				return err
			}
			if job.JobID == "" {
				printSuccess("A reindex is already queued")
			} else {
				printSuccess("Reindex queued (job %s)", job.JobID)
			}
			return nil
		}

		printStep("Reindexing corpus...")
		res, err := reindex(cmd.Context(), client)
		if err != nil {
			return err
		}
		printSuccess("%s", res.Message)
		return nil
	},
}

func init() {
	reindexCmd.Flags().Bool("async", false, "queue the reindex instead of waiting for it")
}

func reindex(ctx context.Context, c *apiClient) (api.ReindexResponse, error) {
	resp, err := c.post(ctx, "/api/admin/reindex", nil)
	if err != nil {
		return api.ReindexResponse{}, err
	}
	var res api.ReindexResponse
	err = decodeJSON(resp, &res)
	return res, err
}

func reindexAsync(ctx context.Context, c *apiClient) (api.JobResponse, error) {
	resp, err := c.post(ctx, "/api/admin/reindex?async=true", nil)
	if err != nil {
		return api.JobResponse{}, err
	}
	var job api.JobResponse
	err = decodeJSON(resp, &job)
	return job, err
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document (txt, md, pdf, html) or a records CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := upload(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if n, ok := result["records"]; ok {
			printSuccess("Inserted %v records", n)
		} else {
			printSuccess("Stored %v, reindex queued", result["name"])
		}
		return nil
	},
}

func upload(ctx context.Context, c *apiClient, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	resp, err := c.post(ctx, "/api/admin/files", api.UploadRequest{
		Filename: filepath.Base(path),
		Content:  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, err
	}
	var result map[string]any
	err = decodeJSON(resp, &result)
	return result, err
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage corpus files",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List corpus files",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		files, err := listFiles(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No corpus files.")
			return nil
		}
		for _, f := range files {
			name := f.Name
			if f.Primary {
				name = render(styleBold, name)
			}
			fmt.Printf("%s  %8d  %s\n", f.ModTime.Local().Format("2006-01-02 15:04"), f.Size, name)
		}
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a corpus file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := deleteFile(cmd.Context(), client, args[0]); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesDeleteCmd)
}

func listFiles(ctx context.Context, c *apiClient) ([]corpus.FileInfo, error) {
	resp, err := c.get(ctx, "/api/admin/files")
	if err != nil {
		return nil, err
	}
	var files []corpus.FileInfo
	err = decodeJSON(resp, &files)
	return files, err
}

func deleteFile(ctx context.Context, c *apiClient, name string) error {
	resp, err := c.delete(ctx, "/api/admin/files/"+escapePath(name))
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

// escapePath escapes each segment of a slash-separated corpus name.
func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Scrape a web page into the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		job, err := fetchPage(cmd.Context(), client, args[0], keep)
		if err != nil {
			return err
		}
		printSuccess("Fetch queued (job %s)", job.JobID)
		return nil
	},
}

func init() {
	fetchCmd.Flags().Bool("keep", false, "keep previously scraped pages")
}

func fetchPage(ctx context.Context, c *apiClient, pageURL string, keepOld bool) (api.JobResponse, error) {
	resp, err := c.post(ctx, "/api/admin/fetch", api.FetchRequest{URL: pageURL, KeepOldData: keepOld})
	if err != nil {
		return api.JobResponse{}, err
	}
	var job api.JobResponse
	err = decodeJSON(resp, &job)
	return job, err
}

// --- records ---

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage university records",
}

var recordsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add one university record",
	Example: `  uniguide records add --university MIT --program "Computer Science" \
    --tuition 57340 --location "Cambridge MA" --visa-service "F-1 Visa Support"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec storage.Record
		rec.University, _ = cmd.Flags().GetString("university")
		rec.Program, _ = cmd.Flags().GetString("program")
		rec.Tuition, _ = cmd.Flags().GetInt64("tuition")
		rec.Location, _ = cmd.Flags().GetString("location")
		rec.VisaService, _ = cmd.Flags().GetString("visa-service")

		if rec.University == "" || rec.Program == "" {
			return fmt.Errorf("--university and --program are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := addRecord(cmd.Context(), client, rec); err != nil {
			return err
		}
		printSuccess("Added %s / %s", rec.University, rec.Program)
		return nil
	},
}

func init() {
	recordsAddCmd.Flags().String("university", "", "university name")
	recordsAddCmd.Flags().String("program", "", "program name")
	recordsAddCmd.Flags().Int64("tuition", 0, "annual tuition")
	recordsAddCmd.Flags().String("location", "", "location")
	recordsAddCmd.Flags().String("visa-service", "", "visa service offered")
	recordsCmd.AddCommand(recordsAddCmd)
}

func addRecord(ctx context.Context, c *apiClient, rec storage.Record) error {
	resp, err := c.post(ctx, "/api/admin/records", rec)
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete records, history, scraped files and the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			printWarning("This deletes ALL records, history, scraped files and the index. Use --yes to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/admin/clear", nil)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("All data cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("yes", false, "confirm deletion")
}

// --- analytics ---

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show the most frequent questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		top, err := topQueries(cmd.Context(), client, limit)
		if err != nil {
			return err
		}
		if len(top) == 0 {
			fmt.Println("No questions asked yet.")
			return nil
		}
		for i, q := range top {
			fmt.Printf("%2d. %s %s\n", i+1, render(styleBold, fmt.Sprintf("(%d)", q.Count)), q.Query)
		}
		return nil
	},
}

func init() {
	analyticsCmd.Flags().Int("limit", 10, "number of questions to show")
}

func topQueries(ctx context.Context, c *apiClient, limit int) ([]storage.QueryCount, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/admin/analytics/top-queries?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	var top []storage.QueryCount
	err = decodeJSON(resp, &top)
	return top, err
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", render(styleBold, k.Key), k.Value, render(styleMuted, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
