package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"katha/internal/notifications"
	"katha/internal/session"
	"katha/internal/utils"
)

var notificationsOpts struct {
	unread   bool
	interval time.Duration
}

func runNotificationsList(a *app, cmd *cobra.Command, _ []string) error {
	list, err := a.notices.List(cmd.Context())
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewNotifications, 0, "")
	if notificationsOpts.unread {
		list = notifications.Unread(list)
	}
	fmt.Fprint(cmd.OutOrStdout(), notifications.Render(list))
	return nil
}

func runNotificationsRead(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("notification", args[0])
	if err != nil {
		return err
	}
	if err := a.notices.MarkRead(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Notification #%d marked read.", id)))
	return nil
}

func runNotificationsReadAll(a *app, cmd *cobra.Command, _ []string) error {
	if err := a.notices.MarkAllRead(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("All notifications marked as read."))
	return nil
}

// runNotificationsWatch prints the unread count whenever it changes. It
// returns on interrupt, or once the session ends.
func runNotificationsWatch(a *app, cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if !a.session.IsLoggedIn() {
		return utils.NewNotLoggedInError("see notifications")
	}
	interval := notificationsOpts.interval
	if interval <= 0 {
		interval = a.cfg.Client.PollInterval
	}

	out := cmd.OutOrStdout()
	last := -1
	poller := notifications.NewPoller(a.notices, interval, func(count int) {
		if count == last {
			return
		}
		last = count
		fmt.Fprintf(out, "%s  %d unread\n", time.Now().Format(time.TimeOnly), count)
	})
	poller.Start(ctx)

	select {
	case <-ctx.Done():
	case <-poller.Done():
	}
	poller.Stop()

	if !a.session.IsLoggedIn() {
		return utils.NewNotLoggedInError("see notifications")
	}
	return nil
}
