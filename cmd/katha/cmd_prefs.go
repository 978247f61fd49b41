package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"katha/internal/utils"
)

var feedbackOpts struct {
	kind    string
	subject string
	email   string
}

func runFeedback(a *app, cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	err := a.feed.SendFeedback(cmd.Context(), feedbackOpts.kind, feedbackOpts.subject, message, feedbackOpts.email)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Thanks! Your feedback was sent."))
	return nil
}

func runPrefsTheme(a *app, cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := a.store.SetTheme(strings.ToLower(args[0])); err != nil {
			return utils.NewAppError(utils.ErrInvalidInput, "Theme must be light or dark", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "theme: "+a.store.Theme())
	return nil
}

func runPrefsSidebar(a *app, cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		var open bool
		switch strings.ToLower(args[0]) {
		case "open", "on", "true":
			open = true
		case "closed", "close", "off", "false":
		default:
			return utils.NewAppError(utils.ErrInvalidInput, "Sidebar must be open or closed", nil)
		}
		if err := a.store.SetSidebarOpen(open); err != nil {
			return err
		}
	}
	state := "closed"
	if a.store.SidebarOpen() {
		state = "open"
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sidebar: "+state)
	return nil
}
