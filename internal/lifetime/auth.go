package lifetime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// loginResponse is the body of a successful POST /auth/v2/login.
type loginResponse struct {
	Token string `json:"token"` // JWE session token
	SSOID string `json:"ssoId"`
}

// Login authenticates with the configured credentials and returns a fresh
// session. Both tokens must be present in the response body; anything else is
// treated as a failed login.
func (c *Client) Login(ctx context.Context) (Session, error) {
	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	status, body, err := c.doJSON(ctx, http.MethodPost, c.baseURL+loginPath, Session{}, payload)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if status/100 != 2 {
		return Session{}, fmt.Errorf("login returned %d: %s", status, truncate(body, 200))
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Session{}, fmt.Errorf("decode login response: %w", err)
	}

	sess := Session{JWE: resp.Token, SSOID: resp.SSOID}
	if !sess.Valid() {
		return Session{}, fmt.Errorf("login response missing token or ssoId")
	}

	c.logger.Info("Login successful")
	return sess, nil
}
