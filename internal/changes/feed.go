// Package changes reads the Drive change feed and keeps its start page token.
package changes

import (
	"context"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const changeFields = "kind,nextPageToken,newStartPageToken," +
	"changes(kind,changeType,time,removed,fileId," +
	"file(id,name,size,mimeType,owners(me),parents,trashed,modifiedTime,md5Checksum,sha1Checksum,fileExtension))"

// Feed lists changes of one Drive account
type Feed struct {
	svc      *drive.Service
	client   *api.Client
	pageSize int64
}

func NewFeed(svc *drive.Service, client *api.Client, pageSize int) *Feed {
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	return &Feed{svc: svc, client: client, pageSize: int64(pageSize)}
}

// StartPageToken returns the token marking "now" in the change feed
func (f *Feed) StartPageToken(ctx context.Context, reqCtx *types.RequestContext) (string, error) {
	result, err := api.ExecuteWithRetry(ctx, f.client, reqCtx, func() (*drive.StartPageToken, error) {
		return f.svc.Changes.GetStartPageToken().Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return result.StartPageToken, nil
}

// Delta is the change feed since a token, split into removals and updates
type Delta struct {
	Removed []string
	Updated []*drive.File
}

// Since pages through every change after token
func (f *Feed) Since(ctx context.Context, reqCtx *types.RequestContext, token string) (*Delta, error) {
	delta := &Delta{}
	pageToken := token
	for pageToken != "" {
		call := f.svc.Changes.List(pageToken).
			Spaces("drive").
			RestrictToMyDrive(true).
			IncludeRemoved(true).
			PageSize(f.pageSize).
			Fields(googleapi.Field(changeFields)).
			Context(ctx)
		list, err := api.ExecuteWithRetry(ctx, f.client, reqCtx, func() (*drive.ChangeList, error) {
			return call.Do()
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range list.Changes {
			switch {
			case ch.File == nil || ch.Removed || ch.File.Trashed:
				if ch.FileId != "" {
					delta.Removed = append(delta.Removed, ch.FileId)
				}
			case ch.File.MimeType == utils.MimeTypeFolder:
			default:
				delta.Updated = append(delta.Updated, ch.File)
			}
		}
		if list.NewStartPageToken != "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return delta, nil
}
