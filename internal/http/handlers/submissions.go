package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/service"
	"github.com/XertroV/linkarchive/internal/urlnorm"
)

// SubmissionHandler serves the URL submission endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler creates a submission handler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// SubmitInput represents a URL submission request.
type SubmitInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" maxLength:"2048" doc:"URL to archive"`
	}
}

// SubmitOutput represents the stored submission.
type SubmitOutput struct {
	Body models.Submission
}

// Submit accepts a URL for archiving.
func (h *SubmissionHandler) Submit(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	sub, err := h.submissions.Submit(ctx, input.Body.URL, ClientIP(ctx), "")
	if err != nil {
		switch {
		case errors.Is(err, urlnorm.ErrInvalidURL):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		case errors.Is(err, service.ErrRateLimited):
			return nil, huma.Error429TooManyRequests(err.Error())
		case errors.Is(err, service.ErrDuplicateSubmission):
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, err
	}
	return &SubmitOutput{Body: *sub}, nil
}

// GetSubmissionInput identifies a submission.
type GetSubmissionInput struct {
	ID string `path:"id" doc:"Submission ID"`
}

// GetSubmissionOutput represents one submission.
type GetSubmissionOutput struct {
	Body models.Submission
}

// GetSubmission returns a submission's status.
func (h *SubmissionHandler) GetSubmission(ctx context.Context, input *GetSubmissionInput) (*GetSubmissionOutput, error) {
	sub, err := h.submissions.GetSubmission(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, huma.Error404NotFound("submission not found")
	}
	return &GetSubmissionOutput{Body: *sub}, nil
}
