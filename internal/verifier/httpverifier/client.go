package httpverifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorMessage = 300
	maxBodyBytes    = 1 << 20
)

// Client implements verifier.Verifier against the backend's JSON login API.
type Client struct {
	config     *verifier.Config
	httpClient *http.Client
}

// New creates a Client. A zero Timeout falls back to 10s.
func New(config *verifier.Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// loginRequest is the body sent to both login endpoints.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ownerResponse is the owner endpoint's success body.
type ownerResponse struct {
	User *struct {
		ID types.FlexString `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
}

// staffResponse is the staff endpoint's success body.
type staffResponse struct {
	Staff *struct {
		ID        types.FlexString `json:"id"`
		WebsiteID types.FlexString `json:"websiteId"`
		Name      string           `json:"name"`
	} `json:"staff"`
	Token string `json:"token"`
}

// errorResponse covers the error shapes the backend is known to use.
type errorResponse struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// Login posts the credentials to the endpoint for role and classifies the answer.
func (c *Client) Login(ctx context.Context, role verifier.Role, email, password string) verifier.Result {
	url, err := c.endpoint(role)
	if err != nil {
		return verifier.TransportFailure(err)
	}

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return verifier.TransportFailure(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return verifier.TransportFailure(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verifier.TransportFailure(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return verifier.TransportFailure(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return verifier.Rejected(resp.StatusCode, errorMessage(resp.Header.Get("Content-Type"), respBody))
	}

	switch role {
	case verifier.RoleOwner:
		return parseOwner(respBody)
	default:
		return parseStaff(respBody)
	}
}

func (c *Client) endpoint(role verifier.Role) (string, error) {
	switch role {
	case verifier.RoleOwner:
		return c.config.OwnerURL, nil
	case verifier.RoleStaff:
		return c.config.StaffURL, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

func parseOwner(body []byte) verifier.Result {
	var r ownerResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return verifier.TransportFailure(fmt.Errorf("parsing response: %w", err))
	}
	if r.User == nil || r.User.ID == "" || r.Token == "" {
		return verifier.Malformed(errors.New("owner response missing user id or token"))
	}
	return verifier.OK(verifier.Identity{
		ID:        r.User.ID.String(),
		ExpiresAt: tokenExpiry(r.Token),
	}, r.Token)
}

func parseStaff(body []byte) verifier.Result {
	var r staffResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return verifier.TransportFailure(fmt.Errorf("parsing response: %w", err))
	}
	if r.Staff == nil || r.Staff.ID == "" || r.Token == "" {
		return verifier.Malformed(errors.New("staff response missing staff id or token"))
	}
	return verifier.OK(verifier.Identity{
		ID:        r.Staff.ID.String(),
		WebsiteID: r.Staff.WebsiteID.String(),
		Name:      r.Staff.Name,
		ExpiresAt: tokenExpiry(r.Token),
	}, r.Token)
}

// tokenExpiry reads the exp claim when the token is a JWT. The signature is
// not checked; the value is informational only.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// errorMessage extracts a user-presentable message from a non-200 body.
// It returns "" when nothing usable is found.
func errorMessage(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if strings.Contains(contentType, "html") || bytes.HasPrefix(trimmed, []byte("<")) {
		md, err := htmltomarkdown.ConvertString(string(trimmed))
		if err != nil {
			return ""
		}
		return truncate(strings.TrimSpace(md))
	}

	var er errorResponse
	if err := json.Unmarshal(trimmed, &er); err == nil {
		if er.Message != "" {
			return truncate(er.Message)
		}
		if msg := rawErrorText(er.Error); msg != "" {
			return truncate(msg)
		}
		return ""
	}

	if strings.HasPrefix(contentType, "text/plain") {
		return truncate(string(trimmed))
	}
	return ""
}

// rawErrorText accepts both {"error":"..."} and {"error":{"message":"..."}}.
func rawErrorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorMessage {
		return s
	}
	return string(r[:maxErrorMessage]) + "…"
}
