package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"katha/internal/feed"
	"katha/internal/models"
	"katha/internal/session"
	"katha/internal/utils"
)

var feedOpts struct {
	sort   string
	author string
	from   string
	to     string
	search string
}

var postOpts struct {
	title   string
	content string
}

var voteOpts struct {
	post int
}

var draftOpts struct {
	title   string
	content string
}

func runFeed(a *app, cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cmd.Flags().Changed("search") {
		if err := a.session.SetSearchTerm(feedOpts.search); err != nil {
			return err
		}
	}
	from, err := dayBound(feedOpts.from, false)
	if err != nil {
		return err
	}
	to, err := dayBound(feedOpts.to, true)
	if err != nil {
		return err
	}

	posts, err := a.feed.List(ctx, models.PostQuery{
		Sort:     feedOpts.sort,
		Author:   feedOpts.author,
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewFeed, 0, "")

	term := a.session.SearchTerm()
	posts = feed.Search(posts, term)
	fmt.Fprint(out, feed.RenderList(posts, "No posts yet."))
	if term != "" {
		fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("Filtered by %q. Clear with --search ''.", term)))
	}
	return nil
}

// dayBound turns a YYYY-MM-DD flag into the timestamp the listing filters
// on: the start of the day, or its last second for an upper bound. Full
// timestamps pass through unchanged.
func dayBound(raw string, end bool) (string, error) {
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(time.RFC3339, raw); err == nil {
		return raw, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return "", utils.NewAppError(utils.ErrInvalidInput,
			fmt.Sprintf("Invalid date %q (want YYYY-MM-DD)", raw), err)
	}
	if end {
		day = day.Add(24*time.Hour - time.Second)
	}
	return day.UTC().Format(time.RFC3339), nil
}

func runShow(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	pv, err := a.feed.Open(cmd.Context(), id)
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewDetail, id, "")
	fmt.Fprint(cmd.OutOrStdout(), feed.RenderDetail(pv.Post()))
	return nil
}

func runSaved(a *app, cmd *cobra.Command, _ []string) error {
	posts, err := a.feed.Saved(cmd.Context())
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewSaved, 0, "")
	fmt.Fprint(cmd.OutOrStdout(), feed.RenderList(posts, "You have not saved any posts."))
	return nil
}

func runMine(a *app, cmd *cobra.Command, args []string) error {
	username := ""
	if len(args) == 1 {
		username = args[0]
	}
	posts, err := a.feed.MyPosts(cmd.Context(), username)
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewMyPosts, 0, username)
	fmt.Fprint(cmd.OutOrStdout(), feed.RenderList(posts, "No posts yet."))
	return nil
}

func runPostCreate(a *app, cmd *cobra.Command, _ []string) error {
	draft := a.store.Draft()
	title, content := postOpts.title, postOpts.content
	if title == "" {
		title = draft.Title
	}
	if content == "" {
		content = draft.Content
	}

	post, err := a.feed.Create(cmd.Context(), title, content)
	if err != nil {
		// Keep what was typed so a retry does not lose it.
		if saveErr := a.store.SaveDraft(models.Draft{Title: title, Content: content}); saveErr != nil {
			a.logger.Warn("saving draft", "error", saveErr)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Published post #%d.", post.ID)))
	return nil
}

func runPostEdit(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	title, content := postOpts.title, postOpts.content
	if title == "" || content == "" {
		current, err := a.feed.Get(ctx, id)
		if err != nil {
			return err
		}
		if title == "" {
			title = current.Title
		}
		if content == "" {
			content = current.Content
		}
	}

	post, err := a.feed.Edit(ctx, id, title, content)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Updated post #%d.", post.ID)))
	return nil
}

func runPostDelete(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	if err := a.feed.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Deleted post #%d.", id)))
	return nil
}

func runSave(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	saved, err := a.feed.ToggleSave(cmd.Context(), id)
	if err != nil {
		return err
	}
	if saved {
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Saved post #%d.", id)))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Removed post #%d from saved.", id)))
	}
	return nil
}

func runVotePost(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	dir, err := parseDirection(args[1])
	if err != nil {
		return err
	}

	post, err := a.feed.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := a.votes.VotePost(ctx, post, dir); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), feed.Summary(post))
	return nil
}

func runVoteComment(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID("comment", args[0])
	if err != nil {
		return err
	}
	dir, err := parseDirection(args[1])
	if err != nil {
		return err
	}

	pv, err := a.feed.Open(ctx, voteOpts.post)
	if err != nil {
		return err
	}
	if err := pv.VoteComment(ctx, a.votes, id, dir); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), feed.RenderDetail(pv.Post()))
	return nil
}

func runDraftShow(a *app, cmd *cobra.Command, _ []string) error {
	draft := a.store.Draft()
	out := cmd.OutOrStdout()
	if draft.Empty() {
		fmt.Fprintln(out, hintStyle.Render("No draft."))
		return nil
	}
	fmt.Fprintln(out, "Title:   "+draft.Title)
	fmt.Fprintln(out, "Content: "+draft.Content)
	return nil
}

func runDraftSave(a *app, cmd *cobra.Command, _ []string) error {
	draft := a.store.Draft()
	if cmd.Flags().Changed("title") {
		draft.Title = draftOpts.title
	}
	if cmd.Flags().Changed("content") {
		draft.Content = draftOpts.content
	}
	if err := a.store.SaveDraft(draft); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Draft saved."))
	return nil
}

func runDraftDiscard(a *app, cmd *cobra.Command, _ []string) error {
	if a.store.Draft().Empty() {
		fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("No draft."))
		return nil
	}
	if err := a.feed.DiscardDraft(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Draft discarded."))
	return nil
}

func parseID(what, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, utils.NewAppError(utils.ErrInvalidInput, fmt.Sprintf("Invalid %s id %q", what, raw), err)
	}
	return id, nil
}

func parseDirection(raw string) (models.VoteValue, error) {
	dir, err := models.ParseDirection(raw)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrInvalidInput, err.Error(), nil)
	}
	return dir, nil
}
