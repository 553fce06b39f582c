package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucifer7355/pdfmerge/delivery"
	"github.com/Lucifer7355/pdfmerge/internal/pdftest"
	"github.com/Lucifer7355/pdfmerge/merge"
	"github.com/Lucifer7355/pdfmerge/pdfdoc"
	"github.com/Lucifer7355/pdfmerge/workspace"
)

type upload struct {
	name string
	data []byte
}

type testEnv struct {
	srv      *httptest.Server
	store    *delivery.Store
	registry *workspace.Registry
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := delivery.NewStore(delivery.StoreOptions{ReleaseDelay: 50 * time.Millisecond, TTL: time.Minute})
	registry, err := workspace.NewRegistry(workspace.RegistryOptions{
		SpoolRoot:   t.TempDir(),
		IdleTimeout: time.Minute,
		Merge: merge.Options{
			Documents: pdfdoc.NewEngine(pdfdoc.Options{}),
			Deliverer: store,
		},
	})
	require.NoError(t, err)
	tokens, err := workspace.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	s := New(Options{Registry: registry, Tokens: tokens, Downloads: store})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		registry.Close()
		store.Close()
	})
	return &testEnv{srv: srv, store: store, registry: registry}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func multipartBody(t *testing.T, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, c *http.Client, files ...upload) (*http.Response, uploadResponse) {
	t.Helper()
	body, ct := multipartBody(t, files...)
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/files", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out uploadResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (e *testEnv) view(t *testing.T, c *http.Client) workspace.View {
	t.Helper()
	resp, err := c.Get(e.srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v workspace.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) page(t *testing.T, c *http.Client) *goquery.Document {
	t.Helper()
	resp, err := c.Get(e.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e.Error
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestEmptyPage(t *testing.T) {
	env := newEnv(t)
	doc := env.page(t, env.client(t))

	assert.Equal(t, 0, doc.Find("#file-list li").Length())
	_, disabled := doc.Find("#merge").Attr("disabled")
	assert.True(t, disabled)
	assert.Equal(t, 0, doc.Find("#progress").Length())
	assert.Equal(t, 0, doc.Find("#download").Length())
}

func TestUploadListsFilesInOrder(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)

	resp, out := env.upload(t, c,
		upload{"a.pdf", bytes.Repeat([]byte("a"), 1000)},
		upload{"b.pdf", bytes.Repeat([]byte("b"), 2048)},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []UploadResult{{Name: "a.pdf", Added: true}, {Name: "b.pdf", Added: true}}, out.Results)
	assert.True(t, out.CanMerge)

	doc := env.page(t, c)
	items := doc.Find("#file-list li")
	require.Equal(t, 2, items.Length())
	assert.Equal(t, "a.pdf", items.Eq(0).Find(".file-name").Text())
	assert.Equal(t, "1000 Bytes", items.Eq(0).Find(".file-size").Text())
	assert.Equal(t, "b.pdf", items.Eq(1).Find(".file-name").Text())
	assert.Equal(t, "2 KB", items.Eq(1).Find(".file-size").Text())
	action, _ := items.Eq(1).Find("form").Attr("action")
	assert.Equal(t, "/files/1/remove", action)

	_, disabled := doc.Find("#merge").Attr("disabled")
	assert.False(t, disabled)
}

func TestUploadRejections(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)

	env.upload(t, c, upload{"a.pdf", []byte("same")})
	_, out := env.upload(t, c,
		upload{"a.pdf", []byte("same")},
		upload{"notes.txt", []byte("text")},
	)

	assert.Equal(t, []UploadResult{
		{Name: "a.pdf", Error: `File "a.pdf" is already added`},
		{Name: "notes.txt", Error: `File "notes.txt" is not a PDF file`},
	}, out.Results)
	assert.Len(t, out.Files, 1)
	assert.Equal(t, "error", string(out.Message.Severity))

	doc := env.page(t, c)
	assert.Equal(t, `File "notes.txt" is not a PDF file`, doc.Find("#message").Text())
	assert.True(t, doc.Find("#message").HasClass("error"))
}

func TestUploadWithoutFiles(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)

	body, ct := multipartBody(t)
	resp, err := c.Post(env.srv.URL+"/files", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing 'files' field", decodeError(t, resp))
}

func TestRemove(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c, upload{"a.pdf", []byte("a")}, upload{"b.pdf", []byte("bb")}, upload{"c.pdf", []byte("ccc")})

	req, _ := http.NewRequest(http.MethodDelete, env.srv.URL+"/files/1", nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	v := env.view(t, c)
	require.Len(t, v.Files, 2)
	assert.Equal(t, "a.pdf", v.Files[0].Name)
	assert.Equal(t, "c.pdf", v.Files[1].Name)

	req, _ = http.NewRequest(http.MethodDelete, env.srv.URL+"/files/7", nil)
	resp, err = c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No file at position 7", decodeError(t, resp))
	assert.Len(t, env.view(t, c).Files, 2)
}

func TestFormPostsRedirect(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c, upload{"a.pdf", []byte("a")})

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/files/0/remove", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Empty(t, env.view(t, c).Files)
}

func TestMergeNeedsTwoFiles(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c, upload{"a.pdf", pdftest.Document(t, 200)})

	resp, err := c.Post(env.srv.URL+"/merge", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, merge.MsgInsufficient, decodeError(t, resp))
	assert.Equal(t, merge.MsgInsufficient, env.view(t, c).Message.Text)
}

func TestMergeAndDownload(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c,
		upload{"a.pdf", pdftest.Document(t, pdftest.Widths(200, 2)...)},
		upload{"b.pdf", pdftest.Document(t, pdftest.Widths(300, 3)...)},
	)

	resp, err := c.Post(env.srv.URL+"/merge", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var v workspace.View
	require.Eventually(t, func() bool {
		v = env.view(t, c)
		return !v.Merging && v.Download != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "done", v.State)
	assert.Equal(t, merge.MsgSucceeded, v.Message.Text)
	assert.Equal(t, delivery.FileName, v.Download.Name)
	assert.Len(t, v.Files, 2)

	doc := env.page(t, c)
	href, ok := doc.Find("#download").Attr("href")
	require.True(t, ok)
	assert.Equal(t, v.Download.URL, href)
	assert.Equal(t, 1, doc.Find("script#download-start").Length(), "the page starts the download itself")

	head, err := http.Head(env.srv.URL + v.Download.URL)
	require.NoError(t, err)
	head.Body.Close()
	assert.Equal(t, http.StatusOK, head.StatusCode)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, env.store.Len(), "HEAD does not consume the download")

	dl, err := c.Get(env.srv.URL + v.Download.URL)
	require.NoError(t, err)
	data, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, delivery.MIMEType, dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "merged.pdf")
	assert.Equal(t, []float64{200, 201, 300, 301, 302}, pdftest.PageWidths(t, data))

	require.Eventually(t, func() bool { return env.store.Len() == 0 }, time.Second, 10*time.Millisecond)
	gone, err := c.Get(env.srv.URL + v.Download.URL)
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)

	after := env.view(t, c)
	assert.Nil(t, after.Download)
	assert.Equal(t, merge.MsgSucceeded, after.Message.Text)
	doc = env.page(t, c)
	assert.Equal(t, 0, doc.Find("#download").Length())
	assert.Equal(t, 0, doc.Find("script#download-start").Length())
}

func TestFailedMergeKeepsSelection(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c,
		upload{"a.pdf", pdftest.Document(t, 200)},
		upload{"broken.pdf", []byte("%PDF-1.7 this is not a pdf")},
	)

	resp, err := c.Post(env.srv.URL+"/merge", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var v workspace.View
	require.Eventually(t, func() bool {
		v = env.view(t, c)
		return !v.Merging && v.State == "failed"
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, strings.HasPrefix(v.Message.Text, merge.MsgFailedPrefix))
	assert.Equal(t, "error", string(v.Message.Severity))
	assert.False(t, v.Progress.Visible)
	assert.Nil(t, v.Download)
	require.Len(t, v.Files, 2)
	assert.Equal(t, "broken.pdf", v.Files[1].Name)
	assert.Equal(t, 0, env.store.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newEnv(t)
	alice, bob := env.client(t), env.client(t)

	env.upload(t, alice, upload{"a.pdf", []byte("a")})
	assert.Len(t, env.view(t, alice).Files, 1)
	assert.Empty(t, env.view(t, bob).Files)
	assert.Equal(t, 2, env.registry.Len())
}

func TestForgedCookieGetsFreshWorkspace(t *testing.T) {
	env := newEnv(t)
	c := env.client(t)
	env.upload(t, c, upload{"a.pdf", []byte("a")})

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/status", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "forged"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var v workspace.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Empty(t, v.Files)
	assert.NotEmpty(t, resp.Cookies())
}

func TestBadIndex(t *testing.T) {
	env := newEnv(t)
	resp, err := env.client(t).Post(env.srv.URL+"/files/x/remove", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid file position", decodeError(t, resp))
}

func TestUnknownDownload(t *testing.T) {
	env := newEnv(t)
	resp, err := http.Get(fmt.Sprintf("%s/downloads/%s/merged.pdf", env.srv.URL, "nope"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
