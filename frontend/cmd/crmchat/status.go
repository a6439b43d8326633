package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/frontend/internal/presence"
	"github.com/wavoo-crm/crmchat/frontend/internal/render"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

var (
	statusWatch   bool
	statusStart   bool
	statusQROut   string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the WhatsApp link status of your tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, user, err := requireSession(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if statusStart {
			if err := deps.API.StartWhatsApp(ctx); err != nil {
				return fmt.Errorf("failed to start WhatsApp: %s", internal_errors.Message(err))
			}
			fmt.Fprintln(out, "WhatsApp session starting")
		}

		tracker := deps.NewTracker(user.TenantID)
		defer tracker.Close()

		statuses := make(chan domain.StatusSnapshot, 8)
		tracker.OnChange(func(e presence.Event) {
			if e.Kind != presence.EventStatus {
				return
			}
			select {
			case statuses <- e.Status:
			default:
			}
		})
		deps.StartDebugServer(func() metrics.Health {
			return metrics.Health{SocketConnected: tracker.Connected(), ChannelState: string(tracker.Status().State)}
		})

		if !statusWatch {
			// The cached snapshot may be stale; wait briefly for a fresh one.
			snap := tracker.Status()
			if err := tracker.Refresh(); err == nil {
				select {
				case snap = <-statuses:
				case <-time.After(statusTimeout):
				case <-ctx.Done():
					return sessionEnded(ctx)
				}
			}
			return printStatus(out, snap, tracker.Connected())
		}

		if err := printStatus(out, tracker.Status(), tracker.Connected()); err != nil {
			return err
		}
		for {
			select {
			case snap := <-statuses:
				if err := printStatus(out, snap, tracker.Connected()); err != nil {
					return err
				}
			case <-ctx.Done():
				return sessionEnded(ctx)
			}
		}
	},
}

func printStatus(out io.Writer, snap domain.StatusSnapshot, connected bool) error {
	fmt.Fprintln(out, render.StatusBadge(snap, connected))
	if snap.State != domain.StateScan || snap.QR == "" {
		return nil
	}
	if statusQROut != "" {
		if err := render.WriteQRFile(statusQROut, snap.QR); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		fmt.Fprintf(out, "QR code saved to %s\n", statusQROut)
		return nil
	}
	return render.QR(out, snap.QR)
}

var presenceCmd = &cobra.Command{
	Use:   "presence <userId>...",
	Short: "Follow the online state of team members",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, user, err := requireSession(cmd)
		if err != nil {
			return err
		}
		ids := make([]domain.ID, len(args))
		for i, a := range args {
			ids[i] = domain.ID(a)
		}

		view := &chatView{out: cmd.OutOrStdout(), now: time.Now}
		tracker := deps.NewTracker(user.TenantID, ids...)
		defer tracker.Close()
		tracker.OnChange(func(e presence.Event) {
			switch e.Kind {
			case presence.EventPresence:
				view.println(render.Presence(e.Presence, view.now()))
			case presence.EventConnection:
				if !e.Connected {
					view.println("Socket disconnected, presence may be stale")
				}
			}
		})

		for _, p := range tracker.Peers() {
			view.println(render.Presence(p, view.now()))
		}
		<-ctx.Done()
		return sessionEnded(ctx)
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep printing status changes")
	statusCmd.Flags().BoolVar(&statusStart, "start", false, "ask the server to start the WhatsApp session first")
	statusCmd.Flags().StringVar(&statusQROut, "qr-out", "", "write the pairing QR code to this PNG file instead of the terminal")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "how long to wait for a fresh status")
}
