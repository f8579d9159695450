package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matsen/mediasearch/internal/search"
	"github.com/spf13/cobra"
)

var (
	matchImage   string
	matchImageID int64
)

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().StringVar(&matchImage, "image", "", "Image file to score")
	matchCmd.Flags().Int64Var(&matchImageID, "image-id", 0, "Indexed image ID to score")
}

// MatchResult is the response for the match command.
type MatchResult struct {
	Text  string  `json:"text"`
	Image string  `json:"image"`
	Score float64 `json:"score"`
}

var matchCmd = &cobra.Command{
	Use:   "match <text...>",
	Short: "Score how well an image matches a prompt",
	Long: `Score one image against a text prompt. The score is cosine similarity
times 100. Exits with code 4 when the image cannot be used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	ref, err := matchRef(matchImage, matchImageID)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	ctx := context.Background()
	cfg := mustLoadConfig()
	svc := mustOpenService(ctx, cfg)
	defer svc.Close()

	text := strings.Join(args, " ")
	score, ok, err := svc.MatchTextAndImage(ctx, text, ref)
	if err != nil {
		exitWithError(ExitError, "matching: %v", err)
	}
	if !ok {
		exitWithError(ExitNoMatch, "image %s is not usable", ref)
	}

	if humanOutput {
		fmt.Printf("%.2f\n", score)
		return nil
	}
	return outputJSON(MatchResult{Text: text, Image: ref.String(), Score: score})
}

func matchRef(path string, id int64) (search.ImageRef, error) {
	switch {
	case path != "" && id > 0:
		return search.ImageRef{}, fmt.Errorf("give --image or --image-id, not both")
	case path != "":
		return search.ByPath(path), nil
	case id > 0:
		return search.ByID(id), nil
	default:
		return search.ImageRef{}, fmt.Errorf("one of --image or --image-id is required")
	}
}
