package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/cli/internal/roomname"
	"github.com/BioHazard786/Warpcast/cli/internal/ui"
)

var (
	flagSource string
	flagLoop   bool
)

var shareCmd = &cobra.Command{
	Use:     "share [room-id]",
	Aliases: []string{"s"},
	Short:   "Share your screen in a room",
	Long: `Join a room and start sharing. Without a room id a new memorable
room name is generated.

The screen is read from a pre-encoded VP8, VP9 or AV1 IVF recording.

Examples:
  warpcast share --source screen.ivf
  warpcast share kitten-waffle-stardust-happy --source screen.ivf
  warpcast share --relay --source screen.ivf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := roomname.Generate()
		if len(args) == 1 {
			var err error
			if roomID, err = parseRoomInput(args[0]); err != nil {
				return err
			}
		}

		info, err := validateSource(flagSource)
		if err != nil {
			return err
		}

		gateway := &capture.IVFGateway{Path: info.Path, Loop: flagLoop}
		return runRoom(cmd.Context(), roomID, gateway)
	},
}

func validateSource(path string) (capture.SourceInfo, error) {
	stopSpinner := ui.RunSpinner("Validating source...")
	info, err := capture.Probe(path)
	stopSpinner()
	if err != nil {
		return capture.SourceInfo{}, err
	}

	fmt.Println()
	ui.RenderSource(ui.SourceItem{
		Name:       info.Name,
		Codec:      info.Codec,
		Resolution: fmt.Sprintf("%dx%d", info.Width, info.Height),
		FrameRate:  info.FrameRate(),
		Size:       info.Size,
	})
	return info, nil
}

func init() {
	rootCmd.AddCommand(shareCmd)

	shareCmd.Flags().StringVar(&flagSource, "source", "", "IVF recording to share")
	shareCmd.Flags().BoolVar(&flagLoop, "loop", true, "Restart the recording when it ends")
	_ = shareCmd.MarkFlagRequired("source")
}
