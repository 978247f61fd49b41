package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"katha/internal/utils"
)

var loginOpts struct {
	password string
	google   string
}

var registerOpts struct {
	email    string
	password string
	login    bool
}

var profileOpts struct {
	username string
	email    string
}

func runLogin(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if loginOpts.google != "" {
		if err := a.session.OAuthLogin(ctx, "google", loginOpts.google); err != nil {
			return err
		}
		return printIdentity(a, cmd)
	}

	username := ""
	if len(args) == 1 {
		username = args[0]
	}
	if username == "" {
		var err error
		if username, err = prompt(cmd, "Username", false); err != nil {
			return err
		}
	}
	password := loginOpts.password
	if password == "" {
		var err error
		if password, err = prompt(cmd, "Password", true); err != nil {
			return err
		}
	}

	if err := a.session.Login(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintln(out, okStyle.Render("Logged in as "+username+"."))
	return nil
}

func runLogout(a *app, cmd *cobra.Command, _ []string) error {
	if !a.session.IsLoggedIn() {
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("Not logged in."))
		return nil
	}
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Logged out."))
	return nil
}

func runRegister(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	username := args[0]

	password := registerOpts.password
	if password == "" {
		var err error
		if password, err = prompt(cmd, "Password", true); err != nil {
			return err
		}
	}

	if err := a.session.Register(ctx, username, registerOpts.email, password); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Account "+username+" created."))

	if !registerOpts.login {
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("Run `katha login "+username+"` to start."))
		return nil
	}
	if err := a.session.Login(ctx, username, password); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Logged in as "+username+"."))
	return nil
}

func runWhoami(a *app, cmd *cobra.Command, _ []string) error {
	if !a.session.IsLoggedIn() {
		return utils.NewNotLoggedInError("see your account")
	}
	return printIdentity(a, cmd)
}

func printIdentity(a *app, cmd *cobra.Command) error {
	user, fresh := a.session.RefreshUser(cmd.Context())
	if user == nil {
		return utils.NewNotLoggedInError("see your account")
	}
	line := user.Username
	if user.Email != "" {
		line += " <" + user.Email + ">"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	if !fresh {
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("(read from the stored token; the server did not answer)"))
	}
	return nil
}

func runProfileUpdate(a *app, cmd *cobra.Command, _ []string) error {
	profile, err := a.session.UpdateProfile(cmd.Context(), profileOpts.username, profileOpts.email)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Profile updated: %s <%s>", profile.Username, profile.Email)))
	return nil
}

// prompt asks for a single value on the terminal. Without a terminal it
// fails so scripts pass the value as a flag or argument instead.
func prompt(cmd *cobra.Command, title string, secret bool) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", utils.NewAppError(utils.ErrInvalidInput,
			fmt.Sprintf("%s is required (no terminal to ask on)", title), nil)
	}

	var value string
	input := huh.NewInput().Title(title).Value(&value)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}
	form := huh.NewForm(huh.NewGroup(input)).
		WithShowHelp(false).
		WithInput(cmd.InOrStdin()).
		WithOutput(cmd.ErrOrStderr())
	if err := form.RunWithContext(cmd.Context()); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", utils.NewAppError(utils.ErrInvalidInput, title+" is required", nil)
		}
		return "", err
	}
	if !secret {
		value = strings.TrimSpace(value)
	}
	if value == "" {
		return "", utils.NewAppError(utils.ErrInvalidInput, title+" is required", nil)
	}
	return value, nil
}
