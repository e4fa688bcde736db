package discourse

import "strings"

type latestResponse struct {
	Users []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"users"`
	TopicList struct {
		Topics []topicSummary `json:"topics"`
	} `json:"topic_list"`
}

type topicSummary struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Slug               string `json:"slug"`
	PostsCount         int    `json:"posts_count"`
	ReplyCount         int    `json:"reply_count"`
	LikeCount          int    `json:"like_count"`
	CreatedAt          string `json:"created_at"`
	Excerpt            string `json:"excerpt"`
	Pinned             bool   `json:"pinned"`
	LastPosterUsername string `json:"last_poster_username"`
	Posters            []struct {
		UserID      int64  `json:"user_id"`
		Description string `json:"description"`
	} `json:"posters"`
}

// author resolves the original poster from the posters list, falling back
// to the first listed poster and then the last poster.
func (t topicSummary) author(usernames map[int64]string) string {
	for _, p := range t.Posters {
		if strings.Contains(p.Description, "Original Poster") {
			if name := usernames[p.UserID]; name != "" {
				return name
			}
		}
	}
	if len(t.Posters) > 0 {
		if name := usernames[t.Posters[0].UserID]; name != "" {
			return name
		}
	}
	return t.LastPosterUsername
}

type topicResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	PostsCount int    `json:"posts_count"`
	PostStream struct {
		Posts []topicPost `json:"posts"`
		// Stream lists every post id in the topic; Posts carries only the
		// first chunk of them.
		Stream []int64 `json:"stream"`
	} `json:"post_stream"`
}

// postsResponse is the body of /t/{id}/posts.json.
type postsResponse struct {
	PostStream struct {
		Posts []topicPost `json:"posts"`
	} `json:"post_stream"`
}

// Discourse post_type values.
const postTypeSmallAction = 3

type topicPost struct {
	ID          int64   `json:"id"`
	PostNumber  int     `json:"post_number"`
	PostType    int     `json:"post_type"`
	Username    string  `json:"username"`
	Cooked      string  `json:"cooked"`
	CreatedAt   string  `json:"created_at"`
	Score       float64 `json:"score"`
	DeletedAt   *string `json:"deleted_at"`
	Hidden      bool    `json:"hidden"`
	UserDeleted bool    `json:"user_deleted"`
}

// isReply reports whether p is a live reply: not the opening post, not a
// moderator action and not deleted or hidden.
func (p topicPost) isReply() bool {
	if p.PostNumber <= 1 || p.PostType == postTypeSmallAction {
		return false
	}
	if p.DeletedAt != nil || p.Hidden || p.UserDeleted {
		return false
	}
	return true
}
