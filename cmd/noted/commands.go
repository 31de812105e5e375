package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/noted/internal/config"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a note",
	Long: `Add a note to the collection.

Examples:
  noted add "Call the dentist about the crown on Tuesday"
  noted add --title "Gift ideas" --text "Mike mentioned he wants a espresso grinder"
  noted add --file ./meeting-notes.pdf
  noted add --url https://example.com/article`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		urlFlag, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && len(args) > 0 {
			text = strings.Join(args, " ")
		}
		if text == "" && file == "" && urlFlag == "" {
			return fmt.Errorf("provide note text, --text, --file, or --url")
		}

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["content"] = text
		case file != "":
			content, err := readNoteFile(file)
			if err != nil {
				return err
			}
			req["content"] = content
			if title == "" {
				req["title"] = file
			}
		case urlFlag != "":
			req["url"] = urlFlag
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/notes", req)
		if err != nil {
			return err
		}

		var note struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			HasEmbedding bool   `json:"has_embedding"`
		}
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}

		printSuccess("Saved note %s (%q)", note.ID[:8], note.Title)
		if !note.HasEmbedding {
			printWarning("Note saved without embedding; run 'noted reembed' once the model is available")
		}
		return nil
	},
}

func init() {
	addCmd.Flags().String("text", "", "note text")
	addCmd.Flags().String("file", "", "file to import (plain text or PDF)")
	addCmd.Flags().String("url", "", "URL to fetch and store as a note")
	addCmd.Flags().String("title", "", "title for the note")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/search?q=%s&top_k=%d", url.QueryEscape(query), topK)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			NoteID string  `json:"note_id"`
			Title  string  `json:"title"`
			Score  float64 `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No matching notes.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%s  %s  [score: %.3f]\n",
				colorize(colorBold, fmt.Sprintf("%d.", i+1)),
				r.Title,
				r.Score,
			)
			fmt.Printf("   %s\n", colorize(colorCyan, r.NoteID))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("top-k", 5, "maximum number of results")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/notes?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var list []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			Content      string `json:"content"`
			HasEmbedding bool   `json:"has_embedding"`
			CreatedAt    string `json:"created_at"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No notes stored.")
			return nil
		}

		for _, n := range list {
			marker := " "
			if !n.HasEmbedding {
				marker = colorize(colorYellow, "!")
			}
			fmt.Printf("%s %s  %s  %s\n",
				marker,
				colorize(colorCyan, n.ID[:8]),
				n.CreatedAt,
				n.Title,
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 50, "maximum number of notes to list")
	listCmd.Flags().Int("offset", 0, "number of notes to skip")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/notes/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted note %s", args[0])
		return nil
	},
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
