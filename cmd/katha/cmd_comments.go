package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"katha/internal/comments"
	"katha/internal/feed"
	"katha/internal/session"
	"katha/internal/utils"
)

// withThread opens the post named by args[0], runs mutate against its
// comment thread and prints the post as reloaded after the change.
func withThread(a *app, cmd *cobra.Command, args []string, mutate func(ctx context.Context, pv *feed.PostView, t *comments.Thread) error) error {
	ctx := cmd.Context()
	postID, err := parseID("post", args[0])
	if err != nil {
		return err
	}
	pv, err := a.feed.Open(ctx, postID)
	if err != nil {
		return err
	}
	a.session.SetView(session.ViewDetail, postID, "")

	if err := mutate(ctx, pv, pv.Thread(a.guard)); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), feed.RenderDetail(pv.Post()))
	return nil
}

func runCommentAdd(a *app, cmd *cobra.Command, args []string) error {
	text := strings.Join(args[1:], " ")
	return withThread(a, cmd, args, func(ctx context.Context, _ *feed.PostView, t *comments.Thread) error {
		return t.Add(ctx, text)
	})
}

func runCommentReply(a *app, cmd *cobra.Command, args []string) error {
	parentID, err := parseID("comment", args[1])
	if err != nil {
		return err
	}
	text := strings.Join(args[2:], " ")
	return withThread(a, cmd, args, func(ctx context.Context, _ *feed.PostView, t *comments.Thread) error {
		return t.Reply(ctx, parentID, text)
	})
}

func runCommentEdit(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("comment", args[1])
	if err != nil {
		return err
	}
	text := strings.Join(args[2:], " ")
	return withThread(a, cmd, args, func(ctx context.Context, pv *feed.PostView, t *comments.Thread) error {
		if err := ownComment(a, pv, id, "edit"); err != nil {
			return err
		}
		return t.Edit(ctx, id, text)
	})
}

func runCommentDelete(a *app, cmd *cobra.Command, args []string) error {
	id, err := parseID("comment", args[1])
	if err != nil {
		return err
	}
	return withThread(a, cmd, args, func(ctx context.Context, pv *feed.PostView, t *comments.Thread) error {
		if err := ownComment(a, pv, id, "delete"); err != nil {
			return err
		}
		return t.Delete(ctx, id)
	})
}

// ownComment refuses to touch a comment that is missing from the loaded post
// or written by someone else.
func ownComment(a *app, pv *feed.PostView, id int, verb string) error {
	user := a.session.User()
	if user == nil {
		return utils.NewNotLoggedInError(verb + " a comment")
	}
	c := comments.Find(pv.Comments(), id)
	if c == nil {
		return utils.NewAppError(utils.ErrNotFound,
			fmt.Sprintf("Comment #%d is not on post #%d.", id, pv.Post().ID), nil)
	}
	if !comments.IsAuthor(c, user) {
		return utils.NewAppError(utils.ErrForbidden,
			fmt.Sprintf("You can only %s your own comments.", verb), nil)
	}
	return nil
}
