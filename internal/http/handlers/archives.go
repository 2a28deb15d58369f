package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/repository"
	"github.com/XertroV/linkarchive/internal/service"
)

// ArchiveHandler serves the archive query and operator endpoints.
type ArchiveHandler struct {
	archives *service.ArchiveService
}

// NewArchiveHandler creates an archive handler.
func NewArchiveHandler(archives *service.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archives: archives}
}

// ListArchivesInput carries the list filters.
type ListArchivesInput struct {
	Status      string `query:"status" enum:"pending,processing,complete,failed,auth_required,skipped," doc:"Filter by status"`
	ContentType string `query:"content_type" doc:"Filter by content type"`
	Domain      string `query:"domain" doc:"Filter by link domain"`
	NSFW        string `query:"nsfw" enum:"true,false," doc:"Filter by NSFW flag"`
	Limit       int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset      int    `query:"offset" minimum:"0"`
}

// ListArchivesOutput is a page of archives with their links.
type ListArchivesOutput struct {
	Body struct {
		Archives []*repository.ArchiveWithLink `json:"archives"`
	}
}

// ListArchives returns archives matching the filters, newest first.
func (h *ArchiveHandler) ListArchives(ctx context.Context, input *ListArchivesInput) (*ListArchivesOutput, error) {
	filter := repository.ArchiveFilter{
		Status:      models.ArchiveStatus(input.Status),
		ContentType: models.ContentType(input.ContentType),
		Domain:      input.Domain,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	if input.NSFW != "" {
		nsfw := input.NSFW == "true"
		filter.NSFW = &nsfw
	}
	items, err := h.archives.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &ListArchivesOutput{}
	out.Body.Archives = items
	return out, nil
}

// SearchArchivesInput carries the full-text query.
type SearchArchivesInput struct {
	Q      string `query:"q" minLength:"1" doc:"Full-text query over title, author and text"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	Offset int    `query:"offset" minimum:"0"`
}

// SearchArchives runs a full-text search over archived content.
func (h *ArchiveHandler) SearchArchives(ctx context.Context, input *SearchArchivesInput) (*ListArchivesOutput, error) {
	items, err := h.archives.Search(ctx, input.Q, input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}
	out := &ListArchivesOutput{}
	out.Body.Archives = items
	return out, nil
}

// ArchiveIDInput identifies one archive.
type ArchiveIDInput struct {
	ID int64 `path:"id" doc:"Archive ID"`
}

// GetArchiveOutput is one archive with its link.
type GetArchiveOutput struct {
	Body repository.ArchiveWithLink
}

// GetArchive returns a single archive.
func (h *ArchiveHandler) GetArchive(ctx context.Context, input *ArchiveIDInput) (*GetArchiveOutput, error) {
	item, err := h.archives.GetArchive(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, huma.Error404NotFound("archive not found")
	}
	return &GetArchiveOutput{Body: *item}, nil
}

// RetryOutput acknowledges a retry request.
type RetryOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// RetryArchive puts a failed archive back in rotation immediately.
func (h *ArchiveHandler) RetryArchive(ctx context.Context, input *ArchiveIDInput) (*RetryOutput, error) {
	if err := h.archives.Retry(ctx, input.ID); err != nil {
		return nil, huma.Error409Conflict(err.Error())
	}
	out := &RetryOutput{}
	out.Body.Status = "queued"
	return out, nil
}

// RearchiveInput identifies an archive to redo.
type RearchiveInput struct {
	ID   int64 `path:"id" doc:"Archive ID"`
	Body struct {
		PreserveMetadata bool `json:"preserve_metadata,omitempty" doc:"Keep extracted title/author/text"`
	}
}

// Rearchive clears an archive's stored output and queues a fresh attempt.
func (h *ArchiveHandler) Rearchive(ctx context.Context, input *RearchiveInput) (*RetryOutput, error) {
	if err := h.archives.Rearchive(ctx, input.ID, input.Body.PreserveMetadata); err != nil {
		return nil, err
	}
	out := &RetryOutput{}
	out.Body.Status = "queued"
	return out, nil
}

// DeleteArchiveOutput acknowledges a delete.
type DeleteArchiveOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// DeleteArchive removes an archive and its stored objects.
func (h *ArchiveHandler) DeleteArchive(ctx context.Context, input *ArchiveIDInput) (*DeleteArchiveOutput, error) {
	if err := h.archives.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	out := &DeleteArchiveOutput{}
	out.Body.Status = "deleted"
	return out, nil
}

// StatsOutput is the aggregate pipeline snapshot.
type StatsOutput struct {
	Body repository.ArchiveStats
}

// GetStats returns counts by status and content type plus storage totals.
func (h *ArchiveHandler) GetStats(ctx context.Context, input *struct{}) (*StatsOutput, error) {
	stats, err := h.archives.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: *stats}, nil
}
