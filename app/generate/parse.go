package generate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/johnp2003/captify-ai/app/models"
)

// PostSeparator joins posts in stored history.
const PostSeparator = "\n\n"

var codeFence = regexp.MustCompile("```json\\n?|\\n?```")

// ParsePosts splits model output into posts. X threads are expected as a JSON array;
// anything else falls back to blank-line splitting. Other platforms yield one post.
func ParsePosts(ct ContentType, text string) []string {
	if ct != ContentX {
		return []string{text}
	}

	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
	var parsed interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return splitPosts(text)
	}
	arr, ok := parsed.([]interface{})
	if !ok {
		return []string{cleaned}
	}
	posts := make([]string, 0, len(arr))
	for _, v := range arr {
		switch t := v.(type) {
		case string:
			posts = append(posts, t)
		default:
			b, _ := json.Marshal(t)
			posts = append(posts, string(b))
		}
	}
	return posts
}

func splitPosts(text string) []string {
	var posts []string
	for _, p := range strings.Split(text, PostSeparator) {
		if strings.TrimSpace(p) != "" {
			posts = append(posts, p)
		}
	}
	return posts
}

// HistoryPosts turns a stored entry back into posts.
func HistoryPosts(c models.GeneratedContent) []string {
	if ct, err := ParseContentType(c.ContentType); err == nil && ct == ContentX {
		return splitPosts(c.Content)
	}
	return []string{c.Content}
}
