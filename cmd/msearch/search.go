package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matsen/mediasearch/internal/search"
	"github.com/spf13/cobra"
)

// searchFlags holds the search command's flags.
type searchFlags struct {
	negative  string
	image     string
	imageID   int64
	byPath    bool
	video     bool
	top       int
	posThresh float64
	negThresh float64
	imgThresh float64
}

var searchOpts searchFlags

var errSearchMode = errors.New("give exactly one of a text query, --image or --image-id")

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.StringVar(&searchOpts.negative, "negative", "", "Prompt the results must not match")
	f.StringVar(&searchOpts.image, "image", "", "Search by example image file")
	f.Int64Var(&searchOpts.imageID, "image-id", 0, "Search by an indexed image's ID")
	f.BoolVar(&searchOpts.byPath, "path", false, "Treat the query as a path substring")
	f.BoolVar(&searchOpts.video, "video", false, "Search video segments instead of images")
	f.IntVarP(&searchOpts.top, "top", "n", 0, "Return at most N results (0 for max_result_num)")
	f.Float64Var(&searchOpts.posThresh, "positive-threshold", 0, "Minimum prompt score (default from config)")
	f.Float64Var(&searchOpts.negThresh, "negative-threshold", 0, "Maximum negative prompt score (default from config)")
	f.Float64Var(&searchOpts.imgThresh, "image-threshold", 0, "Minimum image similarity score (default from config)")
}

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search indexed images or videos",
	Long: `Search the index by text prompt, by example image, or by path substring.

Examples:
  msearch search sunset over the sea
  msearch search dog --negative cat --video
  msearch search --image ~/Pictures/query.jpg
  msearch search --image-id 42 --video
  msearch search --path 2023/holiday

Scores are cosine similarity times 100.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := mustLoadConfig()
	svc := mustOpenService(ctx, cfg)
	defer svc.Close()

	req, err := buildSearchRequest(searchOpts, strings.Join(args, " "), svc.DefaultRequest(0))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	applyThresholdFlags(cmd, &req)

	results, err := svc.Search(ctx, req)
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}

	if humanOutput {
		printResultsHuman(results)
		return nil
	}
	if results == nil {
		results = []search.Result{}
	}
	return outputJSON(results)
}

// buildSearchRequest picks the search type from the flags. base carries the
// configured thresholds and result cap.
func buildSearchRequest(opts searchFlags, query string, base search.Request) (search.Request, error) {
	req := base
	req.Positive = strings.TrimSpace(query)
	req.Negative = strings.TrimSpace(opts.negative)
	req.TopN = opts.top

	modes := 0
	for _, set := range []bool{req.Positive != "", opts.image != "", opts.imageID > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return search.Request{}, errSearchMode
	}

	switch {
	case opts.image != "":
		req.ImagePath = opts.image
		req.Type = pick(opts.video, search.TypeImageToVideo, search.TypeImageToImage)
	case opts.imageID > 0:
		req.ImageID = opts.imageID
		req.Type = pick(opts.video, search.TypeIDToVideo, search.TypeIDToImage)
	case opts.byPath:
		req.Type = pick(opts.video, search.TypePathToVideo, search.TypePathToImage)
	default:
		req.Type = pick(opts.video, search.TypeTextToVideo, search.TypeTextToImage)
	}
	if opts.byPath && req.Type != search.TypePathToImage && req.Type != search.TypePathToVideo {
		return search.Request{}, fmt.Errorf("--path needs a text query")
	}
	return req, nil
}

// applyThresholdFlags overrides configured thresholds with flags the user set.
func applyThresholdFlags(cmd *cobra.Command, req *search.Request) {
	f := cmd.Flags()
	if f.Changed("positive-threshold") {
		req.PositiveThreshold = searchOpts.posThresh
	}
	if f.Changed("negative-threshold") {
		req.NegativeThreshold = searchOpts.negThresh
	}
	if f.Changed("image-threshold") {
		req.ImageThreshold = searchOpts.imgThresh
	}
}

func pick(video bool, ifVideo, ifImage search.Type) search.Type {
	if video {
		return ifVideo
	}
	return ifImage
}
