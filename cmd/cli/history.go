package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garycarlyle/TVShow/internal/domain"
	"github.com/garycarlyle/TVShow/pkg/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past playback sessions",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if status != "" {
			q.Set("status", status)
		}

		var resp struct {
			Records []*domain.PlaybackRecord `json:"records"`
		}
		if !request(http.MethodGet, "/api/v1/history?"+q.Encode(), nil, &resp) {
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTITLE\tQUALITY\tSTATUS\tPROGRESS\tSTARTED")
		for _, r := range resp.Records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
				truncate(r.ID, 8),
				truncate(r.Title, 32),
				r.Quality,
				r.Status,
				r.Progress,
				r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show playback statistics",
	Run: func(cmd *cobra.Command, args []string) {
		var stats domain.PlaybackStats
		if !request(http.MethodGet, "/api/v1/history/stats", nil, &stats) {
			return
		}

		fmt.Println("Playback Statistics:")
		fmt.Printf("  Total:    %d\n", stats.Total)
		fmt.Printf("  Active:   %d\n", stats.Active)
		fmt.Printf("  Buffered: %d\n", stats.Buffered)
		fmt.Printf("  Stopped:  %d\n", stats.Stopped)
		fmt.Printf("  Failed:   %d\n", stats.Failed)
		fmt.Printf("  Films:    %d\n", stats.UniqueFilms)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show today's catalog, playback or error log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")

		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if date != "" {
			q.Set("date", date)
		}
		path := "/api/v1/logs/" + url.PathEscape(args[0])
		if search != "" {
			q.Set("q", search)
			path += "/search"
		}

		var resp struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		if !request(http.MethodGet, path+"?"+q.Encode(), nil, &resp) {
			return
		}

		for _, e := range resp.Entries {
			fmt.Printf("%s %-5s %s", e.Timestamp, e.Level, e.Message)
			for k, v := range e.Fields {
				fmt.Printf(" %s=%v", k, v)
			}
			fmt.Println()
		}
	},
}

func init() {
	historyCmd.Flags().StringP("status", "s", "", "Filter by status (starting, downloading, buffered, stopped, failed)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of sessions")
	logsCmd.Flags().StringP("search", "q", "", "Only entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 100, "Maximum number of entries")
	logsCmd.Flags().String("date", "", "Log date (YYYY-MM-DD, default today)")
}
