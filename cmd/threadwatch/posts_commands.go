package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"threadwatch/internal/forum"
	"threadwatch/internal/store"
)

type postView struct {
	ID           int64     `json:"id"`
	SourceID     string    `json:"source_id"`
	Kind         string    `json:"kind"`
	Forum        string    `json:"forum"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	URL          string    `json:"url"`
	Category     string    `json:"category"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	Notified     bool      `json:"notified"`
	Responded    bool      `json:"responded"`
}

func newPostView(p forum.Post) postView {
	return postView{
		ID:           p.ID,
		SourceID:     p.SourceID,
		Kind:         string(p.Kind),
		Forum:        p.Forum,
		Title:        p.Title,
		Author:       p.Author,
		URL:          p.URL,
		Category:     string(p.Category),
		Score:        p.Score,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
		FetchedAt:    p.FetchedAt,
		Notified:     p.Notified,
		Responded:    p.Responded,
	}
}

func newPostsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List recently stored posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				posts, err := st.RecentPosts(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]postView, 0, len(posts))
					for _, p := range posts {
						views = append(views, newPostView(p))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(posts) == 0 {
					fmt.Fprintln(out, "No posts stored yet")
					return nil
				}
				fmt.Fprintln(out, renderPostsTable(posts, time.Now(), shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of posts to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit posts as JSON")

	cmd.AddCommand(newPostsShowCommand(ctx))
	cmd.AddCommand(newPostsRespondCommand(ctx))
	return cmd
}

func newPostsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored post and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePostID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				post, err := st.GetPost(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("post %d not found", id)
				}
				if err != nil {
					return err
				}
				comments, err := st.Comments(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderPostDetail(*post, comments))
				return nil
			})
		},
	}
}

func newPostsRespondCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "respond <id>",
		Short: "Mark a post as responded to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePostID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				if err := st.MarkResponded(cmd.Context(), id); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("post %d not found", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Post %d marked as responded\n", id)
				return nil
			})
		},
	}
}

func parsePostID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id %q", raw)
	}
	return id, nil
}

func renderPostsTable(posts []forum.Post, now time.Time, colorize bool) string {
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			formatAge(now, p.CreatedAt),
			p.Forum,
			p.Category.Label(),
			strconv.Itoa(p.CommentCount),
			postFlags(p),
			truncateText(p.Title, 60),
		})
	}
	return renderTable(tableLayout{
		headers:  []string{"ID", "Age", "Forum", "Category", "Comments", "Flags", "Title"},
		aligns:   []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		colorize: colorize,
	}, rows)
}

// postFlags renders N for notified and R for responded.
func postFlags(p forum.Post) string {
	var b strings.Builder
	if p.Notified {
		b.WriteString("N")
	}
	if p.Responded {
		b.WriteString("R")
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

func renderPostDetail(p forum.Post, comments []forum.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Title)
	fmt.Fprintf(&b, "  %-10s %s\n", "URL:", p.URL)
	fmt.Fprintf(&b, "  %-10s %s (%s)\n", "Forum:", p.Forum, p.Kind)
	fmt.Fprintf(&b, "  %-10s %s\n", "Author:", p.Author)
	fmt.Fprintf(&b, "  %-10s %s\n", "Created:", p.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&b, "  %-10s %s\n", "Category:", p.Category.Label())
	fmt.Fprintf(&b, "  %-10s %d score, %d comments\n", "Activity:", p.Score, p.CommentCount)
	fmt.Fprintf(&b, "  %-10s notified=%s responded=%s\n", "State:", yesNo(p.Notified), yesNo(p.Responded))
	if body := strings.TrimSpace(p.Body); body != "" {
		fmt.Fprintf(&b, "\n%s\n", body)
	}
	fmt.Fprintf(&b, "\nComments (%d stored)\n", len(comments))
	for _, c := range comments {
		fmt.Fprintf(&b, "  - %s [%d]: %s\n", c.Author, c.Score, truncateText(c.Body, 120))
	}
	return b.String()
}
