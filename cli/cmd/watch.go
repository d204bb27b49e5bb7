package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcast/cli/internal/session"
	"github.com/BioHazard786/Warpcast/cli/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <room-id|url>",
	Aliases: []string{"w"},
	Short:   "Watch the screen shared in a room",
	Long: `Join a room as a viewer. Whoever shares in the room is streamed to you.

Examples:
  warpcast watch kitten-waffle-stardust-happy
  warpcast watch https://warpcast.qzz.io/r/kitten-waffle-stardust-happy
  warpcast watch kitten-waffle-stardust-happy --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runRoom(cmd.Context(), roomID, nil)
	},
}

// parseRoomInput accepts a bare room id or a room link.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", session.NewError("parse URL", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
