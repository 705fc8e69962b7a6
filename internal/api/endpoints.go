package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reelup/internal/services"
)

// ProcessNewUpload is the worker job kind that post-processes a merged upload.
const ProcessNewUpload = "new-upload"

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type loginResponse struct {
	UserID flexString        `json:"userId"`
	Token  string            `json:"token"`
	Errors []json.RawMessage `json:"errors"`
}

// Login exchanges an email and password for a user id and token.
func (c *Client) Login(ctx context.Context, email, password string) (string, string, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/login", nil, body, &resp); err != nil {
		return "", "", classifyLoginError(ctx, err)
	}
	if len(resp.Errors) > 0 {
		return "", "", services.Wrap(services.ErrInvalidCredentials, "api", "login", describeErrors(resp.Errors), nil)
	}
	if resp.UserID == "" || strings.TrimSpace(resp.Token) == "" {
		return "", "", services.Wrap(services.ErrInvalidCredentials, "api", "login", "response missing userId or token", nil)
	}
	return string(resp.UserID), resp.Token, nil
}

func classifyLoginError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "api", "login", "", err)
	}
	var apiErr *services.APIError
	if !errors.As(err, &apiErr) {
		return services.Wrap(services.ErrNetworkUnreachable, "api", "login", "", err)
	}
	if apiErr.Status >= 500 {
		return services.Wrap(services.ErrNetworkUnreachable, "api", "login", "service unavailable", err)
	}
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	message := ""
	if json.Unmarshal([]byte(apiErr.Body), &payload) == nil && len(payload.Errors) > 0 {
		message = describeErrors(payload.Errors)
	}
	return services.Wrap(services.ErrInvalidCredentials, "api", "login", message, err)
}

func describeErrors(raw []json.RawMessage) string {
	messages := make([]string, 0, len(raw))
	for _, item := range raw {
		var text string
		if json.Unmarshal(item, &text) == nil {
			messages = append(messages, text)
			continue
		}
		var obj struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if json.Unmarshal(item, &obj) == nil && (obj.Message != "" || obj.Detail != "") {
			if obj.Message != "" {
				messages = append(messages, obj.Message)
			} else {
				messages = append(messages, obj.Detail)
			}
			continue
		}
		messages = append(messages, string(item))
	}
	return strings.Join(messages, "; ")
}

// UserData lists the projects and folder trees of the authenticated user.
func (c *Client) UserData(ctx context.Context, auth Auth) (*UserData, error) {
	var resp UserData
	body := map[string]any{"mid": auth.UserID, "t": auth.Token}
	if err := c.doJSON(ctx, http.MethodPost, "/user_data", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterFileReferences registers every file in one call and returns one
// FileReference per input, in input order.
func (c *Client) RegisterFileReferences(ctx context.Context, auth Auth, folderID string, files []FileSpec) ([]FileReference, error) {
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrBadRequest, "api", "register", "no files to register", nil)
	}
	refs := make(map[string]FileSpec, len(files))
	for i, file := range files {
		refs[strconv.Itoa(i)] = file
	}

	var resp struct {
		FileReferences map[string]FileReference `json:"file_references"`
	}
	path := "/folders/" + url.PathEscape(folderID) + "/file_references"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, withAuth(auth, map[string]any{"file_references": refs}), &resp); err != nil {
		return nil, err
	}

	out := make([]FileReference, len(files))
	for i := range files {
		ref, ok := resp.FileReferences[strconv.Itoa(i)]
		if !ok || strings.TrimSpace(ref.ID) == "" {
			return nil, services.Wrap(services.ErrServerError, "api", "register", fmt.Sprintf("response missing file reference %d", i), nil)
		}
		out[i] = ref
	}
	return out, nil
}

// UploadPart PUTs size bytes from body to a pre-signed part URL.
func (c *Client) UploadPart(ctx context.Context, partURL, contentType string, body io.Reader, size int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, partURL, body)
	if err != nil {
		return err
	}
	if size == 0 {
		req.Body = http.NoBody
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put part %s: %w", redactURL(partURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return services.NewAPIError(http.MethodPut, redactURL(partURL), resp.StatusCode, string(data))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// CompletePart acknowledges a successfully uploaded part. partNum is 1-based.
func (c *Client) CompletePart(ctx context.Context, auth Auth, assetID string, partNum int) error {
	path := "/file_references/" + url.PathEscape(assetID) + "/part_complete"
	return c.doJSON(ctx, http.MethodPost, path, nil, withAuth(auth, map[string]any{"part_num": partNum}), nil)
}

// MergeParts asks the service to assemble the uploaded parts.
func (c *Client) MergeParts(ctx context.Context, auth Auth, assetID string) error {
	path := "/file_references/" + url.PathEscape(assetID) + "/merge_parts"
	return c.doJSON(ctx, http.MethodPost, path, nil, withAuth(auth, nil), nil)
}

// CreateWorkerJob starts server-side post-processing of a merged upload.
func (c *Client) CreateWorkerJob(ctx context.Context, auth Auth, assetID string) error {
	body := withAuth(auth, map[string]any{
		"file_reference_id": assetID,
		"process":           ProcessNewUpload,
	})
	return c.doJSON(ctx, http.MethodPost, "/worker/create_job", nil, body, nil)
}

// DeleteFileReferences removes file references from a folder.
func (c *Client) DeleteFileReferences(ctx context.Context, auth Auth, folderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	refs := make(map[string]map[string]string, len(ids))
	for i, id := range ids {
		refs[strconv.Itoa(i)] = map[string]string{"id": id}
	}
	path := "/folders/" + url.PathEscape(folderID) + "/file_references/delete"
	return c.doJSON(ctx, http.MethodPost, path, nil, withAuth(auth, map[string]any{"file_references": refs}), nil)
}

// GetFileReference fetches an asset with its comments.
func (c *Client) GetFileReference(ctx context.Context, auth Auth, id string) (*Asset, error) {
	query := url.Values{}
	query.Set("mid", auth.UserID)
	query.Set("t", auth.Token)
	if auth.ProjectID != "" {
		query.Set("aid", auth.ProjectID)
	}
	var asset Asset
	if err := c.doJSON(ctx, http.MethodGet, "/file_references/"+url.PathEscape(id), query, nil, &asset); err != nil {
		return nil, err
	}
	if asset.ID == "" {
		asset.ID = id
	}
	return &asset, nil
}

// redactURL drops the query string, which carries the pre-signed credentials.
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<part url>"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
