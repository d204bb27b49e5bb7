package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpcast/cli/internal/capture"
	"github.com/BioHazard786/Warpcast/cli/internal/config"
	"github.com/BioHazard786/Warpcast/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcast/cli/internal/session"
	"github.com/BioHazard786/Warpcast/cli/internal/signaling"
	"github.com/BioHazard786/Warpcast/cli/internal/ui"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
		Insecure:   flagInsecure,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (*signaling.Client, error) {
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()

	client := signaling.NewClient(cfg.WebSocketURL)
	delay := time.Duration(cfg.ReconnectDelayMS) * time.Millisecond
	if err := client.Connect(ctx, cfg.ReconnectAttempts, delay); err != nil {
		sp.Stop()
		return nil, session.NewError("connect to server", err)
	}
	sp.Success("Connected to " + cfg.Domain)
	return client, nil
}

// runRoom joins roomID, optionally sharing from gateway, and drives the
// live view until the user quits or the server goes away.
func runRoom(ctx context.Context, roomID string, gateway capture.Gateway) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}

	share := gateway != nil
	fmt.Println()
	ui.RenderRoomInfo(roomID, cfg.GetRoomLink(roomID), share)

	view := ui.NewLiveView(share)
	sess := session.New(client, session.Options{
		Room:    roomID,
		Share:   share,
		Gateway: gateway,
		Peers:   negotiation.NewFactory(cfg.PeerConfiguration()),
		Actions: view.Actions(),
	}, view, slog.Default())

	view.Start()
	runErr := sess.Run(ctx)
	view.Stop()

	fmt.Println()
	ui.RenderParticipants(sess.Snapshot())
	ui.RenderSessionSummary(sess.Summary())

	if errors.Is(runErr, session.ErrConnectionLost) {
		ui.PrintWarning(runErr.Error())
		return nil
	}
	return runErr
}
