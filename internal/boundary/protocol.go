package boundary

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"graphscore/internal/dag"
	"graphscore/internal/scoring"
)

// Request is the message posted to a worker.
type Request struct {
	RequestID *int       `json:"requestId" validate:"required"`
	Graph     *dag.Graph `json:"graph" validate:"required"`
	PinnedIDs []string   `json:"pinnedIds,omitempty" validate:"omitempty,dive,required"`
}

// Response is the single terminal message a worker emits.
// Exactly one of the score pair or Error/Code is meaningful.
type Response struct {
	RequestID         int          `json:"requestId"`
	ReplacementScore  float64      `json:"replacementScore"`
	CompletenessScore float64      `json:"completenessScore"`
	Error             string       `json:"error,omitempty"`
	Code              scoring.Code `json:"code,omitempty"`
}

// Failed reports whether r is a failure response.
func (r *Response) Failed() bool {
	return r.Error != ""
}

// Scores returns the score pair of a success response.
func (r *Response) Scores() scoring.Scores {
	return scoring.Scores{Replacement: r.ReplacementScore, Completeness: r.CompletenessScore}
}

// Err converts a failure response into an EngineError.
func (r *Response) Err() error {
	if !r.Failed() {
		return nil
	}
	code := r.Code
	if code == "" {
		code = scoring.CodeInputMalformed
	}
	return (&scoring.EngineError{Code: code, Message: r.Error}).WithRequestID(r.RequestID)
}

type successMessage struct {
	RequestID         int     `json:"requestId"`
	ReplacementScore  float64 `json:"replacementScore"`
	CompletenessScore float64 `json:"completenessScore"`
}

type failureMessage struct {
	RequestID int          `json:"requestId"`
	Error     string       `json:"error"`
	Code      scoring.Code `json:"code"`
}

// MarshalJSON emits only the fields belonging to the response kind.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(failureMessage{RequestID: r.RequestID, Error: r.Error, Code: r.Code})
	}
	return json.Marshal(successMessage{
		RequestID:         r.RequestID,
		ReplacementScore:  r.ReplacementScore,
		CompletenessScore: r.CompletenessScore,
	})
}

func successResponse(id int, s scoring.Scores) Response {
	return Response{RequestID: id, ReplacementScore: s.Replacement, CompletenessScore: s.Completeness}
}

func failureResponse(id int, err error) Response {
	var ee *scoring.EngineError
	if errors.As(err, &ee) {
		msg := ee.Message
		if ee.Err != nil {
			msg = fmt.Sprintf("%s: %v", ee.Message, ee.Err)
		}
		return Response{RequestID: id, Error: msg, Code: ee.Code}
	}
	return Response{RequestID: id, Error: err.Error(), Code: scoring.CodeInputMalformed}
}

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks the envelope fields of a request.
func (r *Request) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return scoring.NewError(scoring.CodeInputMalformed, "invalid request: %s", strings.Join(msgs, "; "))
		}
		return scoring.Wrap(scoring.CodeInputMalformed, err, "invalid request")
	}
	return nil
}

// EncodeRequest serializes a request for posting.
func EncodeRequest(r *Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest parses and validates a posted message. The request id is
// returned whenever it could be read, even if the request is rejected.
func DecodeRequest(data []byte) (*Request, int, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, 0, scoring.Wrap(scoring.CodeInputMalformed, err, "failed to decode request")
	}
	id := 0
	if req.RequestID != nil {
		id = *req.RequestID
	}
	if err := req.Validate(); err != nil {
		return nil, id, err
	}
	return &req, id, nil
}

// EncodeResponse serializes a terminal message.
func EncodeResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse parses a terminal message.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &r, nil
}
