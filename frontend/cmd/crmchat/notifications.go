package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavoo-crm/crmchat/frontend/internal/render"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

var (
	notificationsRead  bool
	notificationsWatch bool
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "List notifications",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, _, err := requireSession(cmd)
		if err != nil {
			return err
		}
		feed := deps.NewFeed()
		defer feed.Close()
		if err := feed.Load(ctx); err != nil {
			return fmt.Errorf("failed to load notifications: %s", internal_errors.Message(err))
		}

		view := &chatView{out: cmd.OutOrStdout(), now: time.Now}
		items := feed.Items()
		if len(items) == 0 {
			view.println("No notifications")
		}
		for _, n := range items {
			view.println(render.Notification(n, view.now()))
		}
		if unread := feed.Unread(); unread > 0 {
			view.printf("%d unread\n", unread)
		}

		if notificationsRead {
			if err := feed.MarkAllRead(ctx); err != nil {
				return fmt.Errorf("failed to mark notifications read: %s", internal_errors.Message(err))
			}
		}
		if !notificationsWatch {
			return nil
		}

		feed.OnNew(func(n domain.Notification) {
			view.println(render.Notification(n, view.now()))
		})
		<-ctx.Done()
		return sessionEnded(ctx)
	},
}

func init() {
	notificationsCmd.Flags().BoolVar(&notificationsRead, "read", false, "mark all notifications as read")
	notificationsCmd.Flags().BoolVarP(&notificationsWatch, "watch", "w", false, "keep printing new notifications")
}
