package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Root flags
var (
	flagYes      bool
	flagAPIURL   string
	flagStateDir string
	flagLogLevel string
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

var (
	rootCmd = &cobra.Command{
		Use:   "katha",
		Short: "A terminal client for the Katha discussion board.",
		Long: `katha reads and writes Katha posts from the terminal: browse the feed,
open a post with its comment tree, vote, comment and reply, and keep an eye on
your notifications.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setupApp,
	}

	// Account
	loginCmd = &cobra.Command{
		Use:   "login [username]",
		Short: "Log in with username and password, or with a Google ID token.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withApp(runLogin),
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runLogout),
	}
	registerCmd = &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runRegister),
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runWhoami),
	}
	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile.",
	}
	profileUpdateCmd = &cobra.Command{
		Use:   "update",
		Short: "Change your username and/or email.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runProfileUpdate),
	}

	// Reading
	feedCmd = &cobra.Command{
		Use:   "feed",
		Short: "List posts.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runFeed),
	}
	showCmd = &cobra.Command{
		Use:   "show <post>",
		Short: "Show a post with its comments.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runShow),
	}
	savedCmd = &cobra.Command{
		Use:   "saved",
		Short: "List your saved posts.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runSaved),
	}
	mineCmd = &cobra.Command{
		Use:   "mine [username]",
		Short: "List posts written by you (or by username).",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withApp(runMine),
	}

	// Posts
	postCmd = &cobra.Command{
		Use:   "post",
		Short: "Create, edit or delete posts.",
	}
	postCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Publish a post. Missing fields come from the saved draft.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runPostCreate),
	}
	postEditCmd = &cobra.Command{
		Use:   "edit <post>",
		Short: "Edit one of your posts.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runPostEdit),
	}
	postDeleteCmd = &cobra.Command{
		Use:   "delete <post>",
		Short: "Delete one of your posts.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runPostDelete),
	}
	saveCmd = &cobra.Command{
		Use:   "save <post>",
		Short: "Save a post, or unsave it if already saved.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runSave),
	}

	// Votes
	voteCmd = &cobra.Command{
		Use:   "vote",
		Short: "Vote on a post or comment. Repeating a vote withdraws it.",
	}
	votePostCmd = &cobra.Command{
		Use:   "post <post> up|down",
		Short: "Vote on a post.",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(runVotePost),
	}
	voteCommentCmd = &cobra.Command{
		Use:   "comment <comment> up|down --post <post>",
		Short: "Vote on a comment.",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(runVoteComment),
	}

	// Comments
	commentCmd = &cobra.Command{
		Use:   "comment",
		Short: "Comment on posts. Every change re-renders the post.",
	}
	commentAddCmd = &cobra.Command{
		Use:   "add <post> <text>...",
		Short: "Add a top-level comment.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  withApp(runCommentAdd),
	}
	commentReplyCmd = &cobra.Command{
		Use:   "reply <post> <comment> <text>...",
		Short: "Reply to a comment.",
		Args:  cobra.MinimumNArgs(3),
		RunE:  withApp(runCommentReply),
	}
	commentEditCmd = &cobra.Command{
		Use:   "edit <post> <comment> <text>...",
		Short: "Edit one of your comments.",
		Args:  cobra.MinimumNArgs(3),
		RunE:  withApp(runCommentEdit),
	}
	commentDeleteCmd = &cobra.Command{
		Use:   "delete <post> <comment>",
		Short: "Delete one of your comments and its replies.",
		Args:  cobra.ExactArgs(2),
		RunE:  withApp(runCommentDelete),
	}

	// Drafts
	draftCmd = &cobra.Command{
		Use:   "draft",
		Short: "The unsent post kept on this machine.",
	}
	draftShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the draft.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runDraftShow),
	}
	draftSaveCmd = &cobra.Command{
		Use:   "save",
		Short: "Update the draft's title and/or content.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runDraftSave),
	}
	draftDiscardCmd = &cobra.Command{
		Use:   "discard",
		Short: "Throw the draft away.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runDraftDiscard),
	}

	// Notifications
	notificationsCmd = &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Replies and comments on your content.",
	}
	notificationsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runNotificationsList),
	}
	notificationsReadCmd = &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification read.",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runNotificationsRead),
	}
	notificationsReadAllCmd = &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runNotificationsReadAll),
	}
	notificationsWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Print the unread count as it changes until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  withApp(runNotificationsWatch),
	}

	// Misc
	feedbackCmd = &cobra.Command{
		Use:   "feedback <message>...",
		Short: "Send feedback to the Katha team.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp(runFeedback),
	}
	prefsCmd = &cobra.Command{
		Use:   "prefs",
		Short: "Local display preferences.",
	}
	prefsThemeCmd = &cobra.Command{
		Use:   "theme [light|dark]",
		Short: "Show or set the theme.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withApp(runPrefsTheme),
	}
	prefsSidebarCmd = &cobra.Command{
		Use:   "sidebar [open|closed]",
		Short: "Show or set whether the sidebar starts open.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withApp(runPrefsSidebar),
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "Answer yes to every confirmation")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API root (default from KATHA_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "Directory of the local store (default from KATHA_STATE_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")

	loginCmd.Flags().StringVarP(&loginOpts.password, "password", "p", "", "Password (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginOpts.google, "google", "", "Log in with a Google ID token instead")

	registerCmd.Flags().StringVar(&registerOpts.email, "email", "", "Email address")
	registerCmd.Flags().StringVarP(&registerOpts.password, "password", "p", "", "Password (prompted when omitted)")
	registerCmd.Flags().BoolVar(&registerOpts.login, "login", false, "Log in once the account exists")

	profileUpdateCmd.Flags().StringVar(&profileOpts.username, "username", "", "New username")
	profileUpdateCmd.Flags().StringVar(&profileOpts.email, "email", "", "New email")
	profileCmd.AddCommand(profileUpdateCmd)

	feedCmd.Flags().StringVar(&feedOpts.sort, "sort", "", "newest, oldest, most_voted, most_comments or trending")
	feedCmd.Flags().StringVar(&feedOpts.author, "author", "", "Only posts whose author contains this")
	feedCmd.Flags().StringVar(&feedOpts.from, "from", "", "Only posts created on or after this date (YYYY-MM-DD)")
	feedCmd.Flags().StringVar(&feedOpts.to, "to", "", "Only posts created on or before this date (YYYY-MM-DD)")
	feedCmd.Flags().StringVar(&feedOpts.search, "search", "", "Filter by title, content or author; remembered until cleared with --search ''")

	postCreateCmd.Flags().StringVar(&postOpts.title, "title", "", "Post title")
	postCreateCmd.Flags().StringVar(&postOpts.content, "content", "", "Post body")
	postEditCmd.Flags().StringVar(&postOpts.title, "title", "", "New title (unchanged when omitted)")
	postEditCmd.Flags().StringVar(&postOpts.content, "content", "", "New body (unchanged when omitted)")
	postCmd.AddCommand(postCreateCmd, postEditCmd, postDeleteCmd)

	voteCommentCmd.Flags().IntVar(&voteOpts.post, "post", 0, "Post the comment belongs to")
	_ = voteCommentCmd.MarkFlagRequired("post")
	voteCmd.AddCommand(votePostCmd, voteCommentCmd)

	commentCmd.AddCommand(commentAddCmd, commentReplyCmd, commentEditCmd, commentDeleteCmd)

	draftSaveCmd.Flags().StringVar(&draftOpts.title, "title", "", "Draft title")
	draftSaveCmd.Flags().StringVar(&draftOpts.content, "content", "", "Draft body")
	draftCmd.AddCommand(draftShowCmd, draftSaveCmd, draftDiscardCmd)

	notificationsListCmd.Flags().BoolVar(&notificationsOpts.unread, "unread", false, "Only unread notifications")
	notificationsWatchCmd.Flags().DurationVar(&notificationsOpts.interval, "interval", 0, "Poll interval (default from KATHA_POLL_INTERVAL)")
	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd, notificationsReadAllCmd, notificationsWatchCmd)

	feedbackCmd.Flags().StringVar(&feedbackOpts.kind, "type", "general", "general, bug, feature, improvement or other")
	feedbackCmd.Flags().StringVar(&feedbackOpts.subject, "subject", "", "Subject line")
	feedbackCmd.Flags().StringVar(&feedbackOpts.email, "email", "", "Where to reach you (ignored when logged in)")

	prefsCmd.AddCommand(prefsThemeCmd, prefsSidebarCmd)

	rootCmd.AddCommand(
		loginCmd, logoutCmd, registerCmd, whoamiCmd, profileCmd,
		feedCmd, showCmd, savedCmd, mineCmd,
		postCmd, saveCmd, voteCmd, commentCmd, draftCmd,
		notificationsCmd, feedbackCmd, prefsCmd,
	)
}
