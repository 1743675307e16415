package lifetime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// --------------------------------------------------------------------------
// Registration protocol — two steps:
//  1. POST /event with the event ID and member IDs → regId + agreementId
//  2. PUT /event/{regId}/complete accepting the agreement
// --------------------------------------------------------------------------

// Validation is the business-rule verdict embedded in registration responses.
// IsFatal marks rejections that no retry can fix (already registered,
// conflicting booking, class full, registration not open yet).
type Validation struct {
	IsFatal      bool                      `json:"isFatal"`
	Notification string                    `json:"notification"`
	Rules        map[string]ValidationRule `json:"rules"`
}

// ValidationRule is one named rule inside a validation verdict.
type ValidationRule struct {
	ErrorCode int `json:"errorCode"`
}

// TooSoonErrorCode is the tooSoonRule code meaning registration has not
// opened on the server side yet.
const TooSoonErrorCode = 40

// initiateResponse is the raw body of the initiate step.
type initiateResponse struct {
	RegID     flexString `json:"regId"`
	Agreement struct {
		AgreementID flexString `json:"agreementId"`
	} `json:"agreement"`
	Validation *Validation `json:"validation"`
}

// InitiateResult is the decoded outcome of the initiate step. A non-2xx
// HTTPStatus or a fatal Validation is reported here rather than as an error;
// only transport and auth failures surface through the error return.
type InitiateResult struct {
	HTTPStatus  int
	RegID       string
	AgreementID string
	Validation  *Validation
}

// Ready reports whether the initiate step produced everything the complete
// step needs.
func (r *InitiateResult) Ready() bool {
	return r.HTTPStatus/100 == 2 && r.RegID != "" && r.AgreementID != "" &&
		(r.Validation == nil || !r.Validation.IsFatal)
}

// InitiateRegistration starts a registration for the given event and members.
func (c *Client) InitiateRegistration(ctx context.Context, sess Session, eventID string, memberIDs []int) (*InitiateResult, error) {
	if !sess.Valid() {
		return nil, ErrUnauthorized
	}
	payload := map[string]any{
		"eventId":  eventID,
		"memberId": memberIDs,
	}

	c.logger.Info("Initiating registration", "event_id", eventID, "members", len(memberIDs))
	status, body, err := c.doJSON(ctx, http.MethodPost, c.baseURL+registerPath, sess, payload)
	if err != nil {
		return nil, fmt.Errorf("initiate registration: %w", err)
	}

	result := &InitiateResult{HTTPStatus: status}

	// The API returns the validation verdict on rejections too, so decode
	// the body regardless of status.
	var resp initiateResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		if status/100 == 2 {
			return nil, fmt.Errorf("decode initiate response: %w", jsonErr)
		}
		c.logger.Warn("Initiate returned non-JSON body", "status", status, "body", truncate(body, 200))
		return result, nil
	}

	result.RegID = resp.RegID.String()
	result.AgreementID = resp.Agreement.AgreementID.String()
	result.Validation = resp.Validation
	return result, nil
}

// CompleteResult is the decoded outcome of the complete step.
type CompleteResult struct {
	HTTPStatus int
	Body       string
}

// Completed reports whether the registration finished successfully.
func (r *CompleteResult) Completed() bool { return r.HTTPStatus/100 == 2 }

// CompleteRegistration finishes a registration started by
// InitiateRegistration, accepting the agreement document.
func (c *Client) CompleteRegistration(ctx context.Context, sess Session, regID string, memberIDs []int, agreementID string) (*CompleteResult, error) {
	if !sess.Valid() {
		return nil, ErrUnauthorized
	}
	docID, err := strconv.Atoi(agreementID)
	if err != nil {
		return nil, fmt.Errorf("agreement id %q is not numeric: %w", agreementID, err)
	}
	payload := map[string]any{
		"memberId":          memberIDs,
		"acceptedDocuments": []int{docID},
	}

	u := fmt.Sprintf("%s%s/%s/complete", c.baseURL, registerPath, regID)
	c.logger.Info("Completing registration", "reg_id", regID, "members", len(memberIDs))

	status, body, err := c.doJSON(ctx, http.MethodPut, u, sess, payload)
	if err != nil {
		return nil, fmt.Errorf("complete registration: %w", err)
	}

	return &CompleteResult{HTTPStatus: status, Body: truncate(body, 500)}, nil
}
