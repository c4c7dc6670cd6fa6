package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/garycarlyle/TVShow/api/handlers"
	"github.com/garycarlyle/TVShow/internal/domain"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the visible catalog page window",
	Run: func(cmd *cobra.Command, args []string) {
		var resp handlers.CatalogResponse
		if request(http.MethodGet, "/api/v1/catalog", nil, &resp) {
			printCatalog(resp)
		}
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Load the next catalog page",
	Run: func(cmd *cobra.Command, args []string) {
		var body interface{}
		if cmd.Flags().Changed("query") {
			query, _ := cmd.Flags().GetString("query")
			body = handlers.NextPageRequest{Query: &query}
		}

		var resp handlers.CatalogResponse
		if request(http.MethodPost, "/api/v1/catalog/next", body, &resp) {
			printCatalog(resp)
		}
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Scroll back to the previous catalog page",
	Run: func(cmd *cobra.Command, args []string) {
		var resp handlers.CatalogResponse
		if request(http.MethodPost, "/api/v1/catalog/previous", nil, &resp) {
			printCatalog(resp)
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog (no query returns to popular movies)",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var resp handlers.CatalogResponse
		body := handlers.SearchRequest{Query: strings.Join(args, " ")}
		if request(http.MethodPost, "/api/v1/catalog/search", body, &resp) {
			printCatalog(resp)
		}
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry loading after a connection error",
	Run: func(cmd *cobra.Command, args []string) {
		var resp handlers.CatalogResponse
		if request(http.MethodPost, "/api/v1/catalog/retry", nil, &resp) {
			printCatalog(resp)
		}
	},
}

var openCmd = &cobra.Command{
	Use:   "open [movie-id]",
	Short: "Show movie details and torrents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := strconv.Atoi(args[0]); err != nil {
			fatal(fmt.Errorf("invalid movie id %q", args[0]))
		}

		var movie domain.MovieDetails
		if !request(http.MethodGet, "/api/v1/movies/"+args[0], nil, &movie) {
			return
		}

		fmt.Printf("%s (%d)\n", movie.Title, movie.Year)
		fmt.Printf("  ID:       %d\n", movie.ID)
		fmt.Printf("  IMDb:     %s\n", movie.ImdbCode)
		fmt.Printf("  Rating:   %.1f\n", movie.Rating)
		fmt.Printf("  Runtime:  %d min\n", movie.Runtime)
		fmt.Printf("  Genres:   %s\n", strings.Join(movie.Genres, ", "))
		if movie.PosterImagePath != "" {
			fmt.Printf("  Poster:   %s\n", movie.PosterImagePath)
		}
		if movie.Description != "" {
			fmt.Printf("\n%s\n", movie.Description)
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "QUALITY\tSIZE\tSEEDS\tPEERS")
		for _, t := range movie.Torrents {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", t.Quality, formatBytes(t.SizeBytes), t.Seeds, t.Peers)
		}
		w.Flush()
	},
}

func init() {
	nextCmd.Flags().StringP("query", "q", "", "Fail unless this is the active query")
}

func printCatalog(resp handlers.CatalogResponse) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tYEAR\tRATING\tCOVER")
	for _, m := range resp.Items {
		cover := "-"
		if m.CoverImagePath != "" {
			cover = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%s\n", m.ID, truncate(m.Title, 40), m.Year, m.Rating, cover)
	}
	w.Flush()

	s := resp.State
	mode := "popular"
	if s.ActiveQuery != "" {
		mode = fmt.Sprintf("search %q", s.ActiveQuery)
	}
	fmt.Printf("\n%d movies, %s, pages %v", s.VisibleItems, mode, s.LivePages)
	if s.EndReached {
		fmt.Print(", end of catalog")
	}
	fmt.Println()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
