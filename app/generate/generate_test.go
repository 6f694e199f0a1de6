package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnp2003/captify-ai/app/billing/billingtest"
	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/models"
)

func TestValidate(t *testing.T) {
	req := Request{ContentType: "twitter", Prompt: "  launch week  "}
	require.NoError(t, req.Validate(0))
	assert.Equal(t, ContentX, req.ContentType)
	assert.Equal(t, "launch week", req.Prompt)
	assert.Equal(t, Options{Tone: "professional", Audience: "Everyone", Length: "Medium", Language: "English", Emojis: "Minimal"}, req.Options)

	bad := map[string]Request{
		"unknown platform": {ContentType: "tiktok", Prompt: "x"},
		"empty prompt":     {ContentType: "x", Prompt: "   "},
		"long prompt":      {ContentType: "x", Prompt: strings.Repeat("a", MaxPromptChars+1)},
		"bad tone":         {ContentType: "x", Prompt: "p", Options: Options{Tone: "angry"}},
		"bad language":     {ContentType: "x", Prompt: "p", Options: Options{Language: "Klingon"}},
		"image on x":       {ContentType: "x", Prompt: "p", Image: &Image{MIMEType: "image/png", Data: []byte{1}}},
		"not an image":     {ContentType: "instagram", Prompt: "p", Image: &Image{MIMEType: "text/plain", Data: []byte{1}}},
		"image too big":    {ContentType: "instagram", Prompt: "p", Image: &Image{MIMEType: "image/png", Data: make([]byte, 11)}},
	}
	for name, r := range bad {
		t.Run(name, func(t *testing.T) {
			err := r.Validate(10)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Run("x thread asks for a JSON array", func(t *testing.T) {
		p := BuildPrompt(Request{ContentType: ContentX, Prompt: "Go generics", Options: Options{Tone: "witty"}})
		assert.Contains(t, p, `Create a thread of 5 tweets about "Go generics"`)
		assert.Contains(t, p, "1. Tone: witty.")
		assert.Contains(t, p, "valid JSON array of strings")
	})

	t.Run("instagram with image adds image context", func(t *testing.T) {
		p := BuildPrompt(Request{ContentType: ContentInstagram, Prompt: "sunset", Image: &Image{MIMEType: "image/jpeg", Data: []byte{1}}})
		assert.Contains(t, p, "15-20 relevant hashtags")
		assert.Contains(t, p, "[IMAGE CONTEXT]")
	})

	t.Run("additional requirements always present", func(t *testing.T) {
		p := BuildPrompt(Request{ContentType: ContentLinkedIn, Prompt: "hiring", Options: Options{
			Audience: "Investors", Length: "Long", Language: "Japanese", Emojis: "None",
		}})
		assert.Contains(t, p, "3-5 broad, industry-relevant hashtags")
		assert.Contains(t, p, "Additional Requirements:\n- Target Audience: Investors\n- Content Length: Long\n"+
			"- Output Language: Japanese (Translate naturally if not English)\n- Emoji Usage: None")
		assert.NotContains(t, p, "[IMAGE CONTEXT]")
	})
}

func TestParsePosts(t *testing.T) {
	cases := []struct {
		name string
		ct   ContentType
		in   string
		want []string
	}{
		{"json array", ContentX, `["one", "two"]`, []string{"one", "two"}},
		{"fenced json", ContentX, "```json\n[\"one\", \"two\"]\n```", []string{"one", "two"}},
		{"non-string items", ContentX, `["one", 2]`, []string{"one", "2"}},
		{"json object", ContentX, `{"tweet": "one"}`, []string{`{"tweet": "one"}`}},
		{"plain text", ContentX, "first tweet\n\nsecond tweet\n\n\n\n", []string{"first tweet", "second tweet"}},
		{"linkedin single post", ContentLinkedIn, "para one\n\npara two", []string{"para one\n\npara two"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParsePosts(tc.ct, tc.in))
		})
	}
}

func TestHistoryPosts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, HistoryPosts(models.GeneratedContent{ContentType: "x", Content: "a\n\nb"}))
	assert.Equal(t, []string{"a\n\nb"}, HistoryPosts(models.GeneratedContent{ContentType: "instagram", Content: "a\n\nb"}))
}

func TestGeminiClient(t *testing.T) {
	t.Run("sends prompt and image", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/gemini-2.5-flash-lite:generateContent", r.URL.Path)
			assert.Equal(t, "k-123", r.Header.Get("x-goog-api-key"))
			assert.Empty(t, r.URL.Query().Get("key"))

			var req geminiRequest
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &req))
			if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 2) {
				assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
				assert.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)
				assert.Equal(t, "AQID", req.Contents[0].Parts[1].InlineData.Data)
			}
			_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "hi "}, {"text": "there"}]}, "finishReason": "STOP"}]}`))
		}))
		defer srv.Close()

		c := NewGeminiClient("k-123", "", srv.URL+"/v1beta", time.Second)
		out, err := c.Generate(context.Background(), "hello", &Image{MIMEType: "image/png", Data: []byte{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, "hi there", out)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error": {"code": 503, "message": "overloaded"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`))
		}))
		defer srv.Close()

		c := NewGeminiClient("k", "", srv.URL, time.Second)
		c.backoff = time.Millisecond
		out, err := c.Generate(context.Background(), "p", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid"}}`))
		}))
		defer srv.Close()

		c := NewGeminiClient("k", "", srv.URL, time.Second)
		_, err := c.Generate(context.Background(), "p", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key not valid")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("blocked prompt", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`))
		}))
		defer srv.Close()

		_, err := NewGeminiClient("k", "", srv.URL, time.Second).Generate(context.Background(), "p", nil)
		assert.ErrorContains(t, err, "SAFETY")
	})

	t.Run("transport errors do not leak the key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		c := NewGeminiClient("AIzaSECRETKEY123", "", srv.URL, time.Second)
		c.backoff = time.Millisecond
		_, err := c.Generate(context.Background(), "p", nil)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "AIzaSECRETKEY123")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewGeminiClient("", "", "http://127.0.0.1:1", time.Second).Generate(context.Background(), "p", nil)
		assert.Error(t, err)
	})
}

type stubModel struct {
	out    string
	err    error
	prompt string
}

func (m *stubModel) Generate(_ context.Context, prompt string, _ *Image) (string, error) {
	m.prompt = prompt
	return m.out, m.err
}

func TestServiceGenerate(t *testing.T) {
	newService := func(t *testing.T, m Model) (*Service, *billingtest.MemoryEntitlements) {
		st := billingtest.NewMemoryEntitlements()
		return NewService(m, st, 5, 1<<20, logger.NewTestLogger(t)), st
	}

	t.Run("debits exactly the cost and records history", func(t *testing.T) {
		m := &stubModel{out: `["t1", "t2", "t3"]`}
		svc, st := newService(t, m)
		st.SetPoints("U1", 12)

		res, err := svc.Generate(context.Background(), "U1", Request{ContentType: "x", Prompt: "release notes"})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3"}, res.Posts)
		assert.Equal(t, int64(7), res.Points)
		assert.Equal(t, []int64{-5}, st.Adjustments)
		assert.NotEmpty(t, res.ID)

		saved := st.Content()
		require.Len(t, saved, 1)
		assert.Equal(t, "t1\n\nt2\n\nt3", saved[0].Content)
		assert.Equal(t, "x", saved[0].ContentType)
		assert.Contains(t, m.prompt, "Additional Requirements")
	})

	t.Run("insufficient balance never calls the model", func(t *testing.T) {
		m := &stubModel{out: "unused"}
		svc, st := newService(t, m)
		st.SetPoints("U1", 4)

		_, err := svc.Generate(context.Background(), "U1", Request{ContentType: "linkedin", Prompt: "p"})
		assert.ErrorIs(t, err, ErrInsufficientPoints)
		assert.Empty(t, m.prompt)
		assert.Empty(t, st.Adjustments)
	})

	t.Run("unknown user has no points", func(t *testing.T) {
		svc, _ := newService(t, &stubModel{out: "x"})
		_, err := svc.Generate(context.Background(), "ghost", Request{ContentType: "linkedin", Prompt: "p"})
		assert.ErrorIs(t, err, ErrInsufficientPoints)
	})

	t.Run("model failure does not debit", func(t *testing.T) {
		svc, st := newService(t, &stubModel{err: errors.New("upstream 500")})
		st.SetPoints("U1", 50)

		_, err := svc.Generate(context.Background(), "U1", Request{ContentType: "instagram", Prompt: "p"})
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Empty(t, st.Adjustments)
		assert.Equal(t, int64(50), st.Points("U1"))
	})

	t.Run("history failure still succeeds", func(t *testing.T) {
		svc, st := newService(t, &stubModel{out: "caption"})
		st.SetPoints("U1", 5)
		st.SaveErr = errors.New("disk full")

		res, err := svc.Generate(context.Background(), "U1", Request{ContentType: "instagram", Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, []string{"caption"}, res.Posts)
		assert.Empty(t, res.ID)
		assert.Zero(t, res.Points)
	})

	t.Run("invalid request", func(t *testing.T) {
		svc, _ := newService(t, &stubModel{})
		_, err := svc.Generate(context.Background(), "U1", Request{ContentType: "myspace", Prompt: "p"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}
