package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcast/cli/internal/ui"
	"github.com/BioHazard786/Warpcast/cli/internal/version"
)

var (
	flagDomain   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagInsecure bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcast",
	Short: "Share your screen with everyone in a room, peer to peer over WebRTC",
	Long: `Warpcast is a command-line tool for screen sharing in rooms. One participant
shares at a time and every other participant in the room watches the stream
directly from them over WebRTC. Rooms work across the CLI and the webapp.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagDomain, "domain", "d", "", "Custom signaling domain")
	flags.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	flags.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	flags.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	flags.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	flags.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	flags.BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// for a local server")
}
