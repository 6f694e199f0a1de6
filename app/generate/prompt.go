// Package generate turns a user's brief into platform-shaped post drafts.
package generate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type ContentType string

const (
	ContentX         ContentType = "x"
	ContentInstagram ContentType = "instagram"
	ContentLinkedIn  ContentType = "linkedin"
)

const MaxPromptChars = 2000

var (
	ErrInvalidRequest = errors.New("invalid generation request")

	tones     = []string{"professional", "casual", "witty", "enthusiastic", "empathetic", "controversial"}
	audiences = []string{"Everyone", "Beginners", "Experts", "Gen Z", "Investors"}
	lengths   = []string{"Short", "Medium", "Long"}
	languages = []string{"English", "Spanish", "French", "German", "Portuguese", "Japanese", "Indonesian"}
	emojiUses = []string{"None", "Minimal", "Standard", "Heavy"}
)

// ParseContentType accepts "twitter" as an alias of "x".
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "twitter":
		return ContentX, nil
	case "instagram":
		return ContentInstagram, nil
	case "linkedin":
		return ContentLinkedIn, nil
	}
	return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidRequest, s)
}

// Options are the advanced knobs of a generation. Empty fields take their defaults.
type Options struct {
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
	Length   string `json:"length"`
	Language string `json:"language"`
	Emojis   string `json:"emojis"`
}

// Image is an optional reference picture, only used for Instagram captions.
type Image struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	ContentType ContentType
	Prompt      string
	Options     Options
	Image       *Image
}

func (o Options) withDefaults() Options {
	if o.Tone == "" {
		o.Tone = "professional"
	}
	if o.Audience == "" {
		o.Audience = "Everyone"
	}
	if o.Length == "" {
		o.Length = "Medium"
	}
	if o.Language == "" {
		o.Language = "English"
	}
	if o.Emojis == "" {
		o.Emojis = "Minimal"
	}
	return o
}

// Validate normalizes the request and checks every field against its allowed values.
func (r *Request) Validate(maxImageBytes int) error {
	ct, err := ParseContentType(string(r.ContentType))
	if err != nil {
		return err
	}
	r.ContentType = ct

	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(r.Prompt) > MaxPromptChars {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidRequest, MaxPromptChars)
	}

	r.Options = r.Options.withDefaults()
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"tone", r.Options.Tone, tones},
		{"audience", r.Options.Audience, audiences},
		{"length", r.Options.Length, lengths},
		{"language", r.Options.Language, languages},
		{"emojis", r.Options.Emojis, emojiUses},
	}
	for _, c := range checks {
		if !contains(c.allowed, c.value) {
			return fmt.Errorf("%w: %s must be one of %s", ErrInvalidRequest, c.name, strings.Join(c.allowed, ", "))
		}
	}

	if r.Image != nil {
		if r.ContentType != ContentInstagram {
			return fmt.Errorf("%w: images are only supported for instagram", ErrInvalidRequest)
		}
		if !strings.HasPrefix(r.Image.MIMEType, "image/") {
			return fmt.Errorf("%w: image must have an image/* mime type", ErrInvalidRequest)
		}
		if len(r.Image.Data) == 0 {
			return fmt.Errorf("%w: image is empty", ErrInvalidRequest)
		}
		if maxImageBytes > 0 && len(r.Image.Data) > maxImageBytes {
			return fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidRequest, maxImageBytes)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// BuildPrompt renders the model prompt for a validated request.
func BuildPrompt(r Request) string {
	o := r.Options.withDefaults()

	var b strings.Builder
	switch r.ContentType {
	case ContentX:
		fmt.Fprintf(&b, "You are a viral social media expert. Create a thread of 5 tweets about \"%s\". \n\nRules:\n"+
			"1. Tone: %s. \n"+
			"2. Hook the reader in the first tweet.\n"+
			"3. Use short, punchy sentences.\n"+
			"4. Include 2-3 relevant hashtags in the last tweet only.\n"+
			"5. Each tweet must be under 280 characters.\n"+
			"6. Return the result strictly as a valid JSON array of strings. Example: [\"Tweet 1\", \"Tweet 2\"]. "+
			"Do not include any markdown formatting like ```json.", r.Prompt, o.Tone)
	case ContentInstagram:
		fmt.Fprintf(&b, "You are an Instagram growth strategist. Write a captivating caption for a post about \"%s\". \n\nRules:\n"+
			"1. Tone: %s.\n"+
			"2. Start with a strong hook or question.\n"+
			"3. Use a conversational, authentic tone.\n"+
			"4. Include line breaks for readability.\n"+
			"5. Include a 'call to action' at the end.\n"+
			"6. Add a curated list of 15-20 relevant hashtags at the very bottom.", r.Prompt, o.Tone)
	case ContentLinkedIn:
		fmt.Fprintf(&b, "You are a LinkedIn Top Voice. Write a professional yet personal post about \"%s\". \n\nRules:\n"+
			"1. Tone: %s.\n"+
			"2. Use a strong opening line (hook) to grab attention.\n"+
			"3. Share a valuable insight, story, or lesson.\n"+
			"4. Use short paragraphs for readability (white space).\n"+
			"5. End with a thought-provoking question to encourage comments.\n"+
			"6. Use 3-5 broad, industry-relevant hashtags.", r.Prompt, o.Tone)
	default:
		fmt.Fprintf(&b, "Generate %s content about \"%s\". Tone: %s", r.ContentType, r.Prompt, o.Tone)
	}

	if r.Image != nil && r.ContentType == ContentInstagram {
		b.WriteString(" \n\n[IMAGE CONTEXT]: The user has provided an image. Analyze it and incorporate a natural description into the caption.")
	}

	fmt.Fprintf(&b, "\n\nAdditional Requirements:\n"+
		"- Target Audience: %s\n"+
		"- Content Length: %s\n"+
		"- Output Language: %s (Translate naturally if not English)\n"+
		"- Emoji Usage: %s", o.Audience, o.Length, o.Language, o.Emojis)
	return b.String()
}
