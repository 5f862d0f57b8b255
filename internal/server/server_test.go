package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/decoder"
	"github.com/born-ml/captioner/internal/encoder"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/vocab"
)

func newTestServer(t *testing.T, opts Options) (*Server, *vocab.Vocabulary) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := vocab.Build([]string{"a cat sits", "a dog runs"}, 1, nil)
	require.NoError(t, err)
	m, err := model.New(model.Config{
		Encoder: encoder.Config{ImageSize: 8, Channels: []int{4}, FeatureDim: 6, EmbedSize: 5, Seed: 1},
		Decoder: decoder.Config{VocabSize: v.Len(), EmbedSize: 5, HiddenSize: 7, NumLayers: 1, Seed: 2},
	})
	require.NoError(t, err)
	return New(m, v, opts), v
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCaptionHandler(t *testing.T) {
	s, _ := newTestServer(t, Options{MaxLen: 6})
	h := s.Handler()

	post := func() CaptionResponse {
		body, ct := multipartImage(t, "image", pngBytes(t))
		req := httptest.NewRequest(http.MethodPost, "/api/caption", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp CaptionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	first := post()
	assert.LessOrEqual(t, len(first.Tokens), 6)
	for _, tok := range []string{vocab.STARTToken, vocab.ENDToken, vocab.PADToken} {
		assert.NotContains(t, strings.Fields(first.Caption), tok)
	}
	assert.Equal(t, first, post(), "same image, same caption")
}

func TestCaptionHandler_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, Options{MaxUpload: 1024})
	h := s.Handler()

	tests := []struct {
		name  string
		field string
		data  []byte
		want  int
	}{
		{"wrong field", "file", pngBytes(t), http.StatusBadRequest},
		{"not an image", "image", []byte("hello"), http.StatusBadRequest},
		{"too large", "image", make([]byte, 4096), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartImage(t, tt.field, tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/caption", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if tt.want == http.StatusRequestEntityTooLarge {
				// The multipart parser may or may not surface the size error.
				assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, w.Code)
			} else {
				assert.Equal(t, tt.want, w.Code)
			}
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestVocabHandler(t *testing.T) {
	s, v := newTestServer(t, Options{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/vocab", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp VocabResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, VocabResponse{Size: v.Len(), Threshold: 1, Tokenizer: "word", Fingerprint: v.Fingerprint()}, resp)
}

func TestRootAndVersion(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "version")
}

func TestServe_Shutdown(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
