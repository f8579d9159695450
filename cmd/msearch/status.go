package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index totals",
	Long:  `Show how many images, videos and video frames are indexed.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := mustLoadConfig()
	svc := mustOpenService(ctx, cfg)
	defer svc.Close()

	st := svc.Status()
	if humanOutput {
		fmt.Printf("Images: %d\n", st.TotalImages)
		fmt.Printf("Videos: %d (%d frames)\n", st.TotalVideos, st.TotalVideoFrames)
		fmt.Printf("Store:  %s\n", cfg.Storage.Driver)
		return nil
	}
	return outputJSON(st)
}
