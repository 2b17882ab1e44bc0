package spot

import (
	"context"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Reporter pushes a spot's live status to the central API.  Implementations
// must treat repeated calls with the same status as harmless.
type Reporter interface {
	SetSpotStatus(ctx context.Context, spotID string, status model.SpotStatus) error
}
