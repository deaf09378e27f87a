package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/core/employee"
	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
)

const (
	scimContentType = "application/scim+json"
	scimPatchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
)

var (
	errUserNotFound   = errors.New("identity: user not found in directory")
	errAmbiguousUser  = errors.New("identity: more than one directory user matches")
	errMissingAddress = errors.New("identity: employee has no email address")
)

// SCIMClient は SCIM 2.0 エンドポイントに対してユーザーを無効化します。
type SCIMClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewSCIMClient は SCIMClient を生成します。httpClient が nil の場合は timeout を持つクライアントを用意します。
func NewSCIMClient(baseURL, token string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *SCIMClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SCIMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  httpClient,
		logger:  logger,
	}
}

type scimUser struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Active   bool   `json:"active"`
}

type scimListResponse struct {
	Schemas      []string   `json:"schemas"`
	TotalResults int        `json:"totalResults"`
	Resources    []scimUser `json:"Resources"`
}

type scimPatchOp struct {
	Schemas    []string        `json:"schemas"`
	Operations []scimOperation `json:"Operations"`
}

type scimOperation struct {
	Op    string         `json:"op"`
	Value map[string]any `json:"value"`
}

// Suspend は社員のメールアドレスをユーザー名としてディレクトリのユーザーを検索し、active=false に更新します。
// 既に無効化済みのユーザーは成功として扱います。
func (c *SCIMClient) Suspend(ctx context.Context, emp *employee.Employee) offboarding.DeprovisionResult {
	if err := c.suspend(ctx, emp); err != nil {
		c.logger.Warn("identity suspension failed", slog.Any("error", err))
		return offboarding.DeprovisionResult{OK: false, Error: err.Error()}
	}
	return offboarding.DeprovisionResult{OK: true}
}

func (c *SCIMClient) suspend(ctx context.Context, emp *employee.Employee) error {
	if emp == nil || strings.TrimSpace(emp.Email) == "" {
		return errMissingAddress
	}

	user, err := c.findUser(ctx, emp.Email)
	if err != nil {
		return err
	}
	if !user.Active {
		c.logger.Info("directory user already inactive", slog.String("employee_id", emp.ID), slog.String("user_id", user.ID))
		return nil
	}

	payload := scimPatchOp{
		Schemas:    []string{scimPatchSchema},
		Operations: []scimOperation{{Op: "replace", Value: map[string]any{"active": false}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("identity: encode patch: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/Users/"+url.PathEscape(user.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("identity: patch user %s: unexpected status %d", user.ID, resp.StatusCode)
	}

	c.logger.Info("directory user suspended", slog.String("employee_id", emp.ID), slog.String("user_id", user.ID))
	return nil
}

func (c *SCIMClient) findUser(ctx context.Context, email string) (*scimUser, error) {
	filter := fmt.Sprintf("userName eq %q", email)
	resp, err := c.do(ctx, http.MethodGet, "/Users?filter="+url.QueryEscape(filter), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("identity: search user: unexpected status %d", resp.StatusCode)
	}

	var list scimListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("identity: decode user search: %w", err)
	}

	switch len(list.Resources) {
	case 0:
		return nil, errUserNotFound
	case 1:
		return &list.Resources[0], nil
	default:
		return nil, errAmbiguousUser
	}
}

func (c *SCIMClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Accept", scimContentType)
	if body != nil {
		req.Header.Set("Content-Type", scimContentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	return resp, nil
}
