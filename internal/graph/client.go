package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auriora/onedrivefs/internal/logging"
	"github.com/auriora/onedrivefs/internal/onerrors"
)

// GraphURL is the API endpoint of the Microsoft Graph drive resource.
const GraphURL = "https://graph.microsoft.com/v1.0/me/drive"

const defaultRequestTimeout = 60 * time.Second

// Client implements RemoteClient over net/http. All requests are retried
// with exponential backoff on transient failures (429, any 5xx, network errors);
// auth, not-found, conflict, and quota responses are classified and
// returned immediately for the sync core to act on.
type Client struct {
	httpClient *http.Client
	bearer     BearerSource
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// NewClient constructs a Client bound to bearer for token injection.
func NewClient(bearer BearerSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		bearer:     bearer,
		baseURL:    GraphURL,
		maxRetries: 5,
		backoff:    500 * time.Millisecond,
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// request performs one authenticated HTTP call, classifying the result.
func (c *Client) request(ctx context.Context, method, resource string, body io.Reader, headers map[string]string) ([]byte, error) {
	logger := logging.For("graph")

	token, err := c.bearer.FetchBearer(ctx)
	if err != nil {
		return nil, onerrors.Wrap(onerrors.KindAuth, "fetch bearer token", err)
	}

	full := resource
	if !strings.HasPrefix(resource, "http") {
		full = c.baseURL + resource
	}

	var lastErr error
	delay := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, full, body)
		if err != nil {
			return nil, onerrors.Wrap(onerrors.KindFatal, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = onerrors.Wrap(onerrors.KindTransient, "http request failed", err)
			logger.Warn().Err(err).Str("method", method).Str("resource", resource).Msg("request failed, retrying")
			time.Sleep(delay)
			delay *= 2
			continue
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, onerrors.New(onerrors.KindAuth, "unauthorized")
		case resp.StatusCode == http.StatusNotFound:
			return nil, onerrors.New(onerrors.KindNotFound, resource)
		case resp.StatusCode == http.StatusConflict:
			return nil, onerrors.New(onerrors.KindConflict, decodeMessage(respBody))
		case resp.StatusCode == 507 || resp.StatusCode == 403:
			return nil, onerrors.New(onerrors.KindQuota, decodeMessage(respBody))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = onerrors.New(onerrors.KindTransient, fmt.Sprintf("status %d: %s", resp.StatusCode, decodeMessage(respBody)))
			logger.Warn().Int("status", resp.StatusCode).Msg("transient error, retrying")
			time.Sleep(delay)
			delay *= 2
			continue
		default:
			return nil, onerrors.New(onerrors.KindFatal, fmt.Sprintf("status %d: %s", resp.StatusCode, decodeMessage(respBody)))
		}
	}
	return nil, lastErr
}

func decodeMessage(body []byte) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	return string(body)
}

type wireItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ETag    string `json:"eTag"`
	CTag    string `json:"cTag"`
	Size    uint64 `json:"size"`
	Deleted *struct {
		State string `json:"state"`
	} `json:"deleted,omitempty"`
	Folder *struct{} `json:"folder,omitempty"`
	File   *struct {
		Hashes struct {
			QuickXorHash string `json:"quickXorHash"`
		} `json:"hashes"`
	} `json:"file,omitempty"`
	Parent *struct {
		ID string `json:"id"`
	} `json:"parentReference,omitempty"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	Created      time.Time `json:"createdDateTime"`
}

func (w wireItem) toRemoteItem() RemoteItem {
	item := RemoteItem{
		ID:       w.ID,
		Name:     w.Name,
		ETag:     w.ETag,
		CTag:     w.CTag,
		Size:     w.Size,
		IsFolder: w.Folder != nil,
		Deleted:  w.Deleted != nil,
		ModTime:  w.LastModified,
		CTime:    w.Created,
	}
	if w.Parent != nil {
		item.ParentID = w.Parent.ID
	}
	if w.File != nil {
		item.QuickXorHash = w.File.Hashes.QuickXorHash
	}
	return item
}

type deltaWire struct {
	NextLink  string     `json:"@odata.nextLink,omitempty"`
	DeltaLink string     `json:"@odata.deltaLink,omitempty"`
	Values    []wireItem `json:"value"`
}

func (c *Client) Delta(ctx context.Context, cursor string) (DeltaPage, error) {
	resource := "/root/delta"
	if cursor != "" {
		resource = cursor
	}
	body, err := c.request(ctx, http.MethodGet, resource, nil, nil)
	if err != nil {
		return DeltaPage{}, err
	}
	var page deltaWire
	if err := json.Unmarshal(body, &page); err != nil {
		return DeltaPage{}, onerrors.Wrap(onerrors.KindFatal, "decode delta page", err)
	}
	items := make([]RemoteItem, 0, len(page.Values))
	for _, w := range page.Values {
		items = append(items, w.toRemoteItem())
	}
	if page.NextLink != "" {
		return DeltaPage{Items: items, NextCursor: strings.TrimPrefix(page.NextLink, c.baseURL), More: true}, nil
	}
	return DeltaPage{Items: items, NextCursor: strings.TrimPrefix(page.DeltaLink, c.baseURL), More: false}, nil
}

func (c *Client) GetItem(ctx context.Context, remoteID string) (RemoteItem, error) {
	body, err := c.request(ctx, http.MethodGet, "/items/"+url.PathEscape(remoteID), nil, nil)
	if err != nil {
		return RemoteItem{}, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode item", err)
	}
	return w.toRemoteItem(), nil
}

func (c *Client) ListChildren(ctx context.Context, remoteID string) ([]RemoteItem, error) {
	body, err := c.request(ctx, http.MethodGet, "/items/"+url.PathEscape(remoteID)+"/children", nil, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Value []wireItem `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, onerrors.Wrap(onerrors.KindFatal, "decode children", err)
	}
	items := make([]RemoteItem, 0, len(page.Value))
	for _, w := range page.Value {
		items = append(items, w.toRemoteItem())
	}
	return items, nil
}

func (c *Client) Download(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	return c.download(ctx, remoteID, nil)
}

func (c *Client) DownloadRange(ctx context.Context, remoteID string, offset, length int64) (io.ReadCloser, error) {
	headers := map[string]string{"Range": fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)}
	return c.download(ctx, remoteID, headers)
}

func (c *Client) download(ctx context.Context, remoteID string, headers map[string]string) (io.ReadCloser, error) {
	body, err := c.request(ctx, http.MethodGet, "/items/"+url.PathEscape(remoteID)+"/content", nil, headers)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (c *Client) UploadSmall(ctx context.Context, parentID, name string, content []byte) (RemoteItem, error) {
	resource := fmt.Sprintf("/items/%s:/%s:/content", url.PathEscape(parentID), url.PathEscape(name))
	body, err := c.request(ctx, http.MethodPut, resource, bytes.NewReader(content), map[string]string{
		"Content-Type": "application/octet-stream",
	})
	if err != nil {
		return RemoteItem{}, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode upload response", err)
	}
	return w.toRemoteItem(), nil
}

// UploadLarge creates an upload session and feeds it in fixed-size chunks,
// matching the server-issued session URL protocol used for resumable
// uploads.
func (c *Client) UploadLarge(ctx context.Context, parentID, name string, content io.Reader, size int64) (RemoteItem, error) {
	const chunkSize = 10 * 1024 * 1024

	sessionResource := fmt.Sprintf("/items/%s:/%s:/createUploadSession", url.PathEscape(parentID), url.PathEscape(name))
	sessionBody, err := c.request(ctx, http.MethodPost, sessionResource, strings.NewReader("{}"), nil)
	if err != nil {
		return RemoteItem{}, err
	}
	var session struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(sessionBody, &session); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode upload session", err)
	}

	var offset int64
	buf := make([]byte, chunkSize)
	var last []byte
	for offset < size {
		n, err := io.ReadFull(content, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return RemoteItem{}, onerrors.Wrap(onerrors.KindTransient, "read upload chunk", err)
		}
		chunk := buf[:n]
		end := offset + int64(n) - 1
		headers := map[string]string{
			"Content-Range":  fmt.Sprintf("bytes %d-%d/%d", offset, end, size),
			"Content-Length": fmt.Sprintf("%d", n),
		}
		respBody, err := c.request(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk), headers)
		if err != nil {
			return RemoteItem{}, err
		}
		last = respBody
		offset += int64(n)
	}

	var w wireItem
	if err := json.Unmarshal(last, &w); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode finalized upload", err)
	}
	return w.toRemoteItem(), nil
}

func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (RemoteItem, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	body, err := c.request(ctx, http.MethodPost, "/items/"+url.PathEscape(parentID)+"/children", bytes.NewReader(payload), nil)
	if err != nil {
		return RemoteItem{}, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode folder creation", err)
	}
	return w.toRemoteItem(), nil
}

func (c *Client) Patch(ctx context.Context, remoteID string, patch PatchSpec) (RemoteItem, error) {
	payload := map[string]interface{}{}
	if patch.Name != nil {
		payload["name"] = *patch.Name
	}
	if patch.ParentID != nil {
		payload["parentReference"] = map[string]interface{}{"id": *patch.ParentID}
	}
	if patch.ModTime != nil {
		payload["fileSystemInfo"] = map[string]interface{}{"lastModifiedDateTime": patch.ModTime.Format(time.RFC3339)}
	}
	encoded, _ := json.Marshal(payload)
	body, err := c.request(ctx, "PATCH", "/items/"+url.PathEscape(remoteID), bytes.NewReader(encoded), nil)
	if err != nil {
		return RemoteItem{}, err
	}
	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return RemoteItem{}, onerrors.Wrap(onerrors.KindFatal, "decode patch response", err)
	}
	return w.toRemoteItem(), nil
}

func (c *Client) Delete(ctx context.Context, remoteID string) error {
	_, err := c.request(ctx, http.MethodDelete, "/items/"+url.PathEscape(remoteID), nil, nil)
	if onerrors.IsNotFound(err) {
		// already gone remotely; not found is treated as an implicit
		// remote delete, not a failure.
		return nil
	}
	return err
}
