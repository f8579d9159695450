package search

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownSearchKind is returned by Search for an unrecognized request type.
var ErrUnknownSearchKind = errors.New("unknown search type")

// Type selects the query a Request runs. The numeric values are stable and
// used by clients.
type Type int

const (
	TypeTextToImage  Type = 0
	TypeImageToImage Type = 1 // query image given by path
	TypeTextToVideo  Type = 2
	TypeImageToVideo Type = 3 // query image given by path
	TypeMatch        Type = 4
	TypeIDToImage    Type = 5
	TypeIDToVideo    Type = 6
	TypePathToImage  Type = 7
	TypePathToVideo  Type = 8
)

var typeNames = map[Type]string{
	TypeTextToImage:  "text-image",
	TypeImageToImage: "image-image",
	TypeTextToVideo:  "text-video",
	TypeImageToVideo: "image-video",
	TypeMatch:        "match",
	TypeIDToImage:    "id-image",
	TypeIDToVideo:    "id-video",
	TypePathToImage:  "path-image",
	TypePathToVideo:  "path-video",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Request is a search of any type. Fields irrelevant to Type are ignored.
type Request struct {
	Type Type

	Positive string // prompt for text searches, match text, substring for path searches
	Negative string

	PositiveThreshold float64
	NegativeThreshold float64
	ImageThreshold    float64

	ImageID   int64
	ImagePath string

	// MaxResults caps the result list before TopN. Zero or less means no cap.
	MaxResults int
	TopN       int
}

// Search runs req and truncates the results to MaxResults, then TopN.
// A TypeMatch request returns a single KindMatch result, or none when the
// image is unusable.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	var results []Result
	var err error

	switch req.Type {
	case TypeTextToImage:
		results, err = e.SearchImageByText(ctx, req.Positive, req.Negative, req.PositiveThreshold, req.NegativeThreshold)
	case TypeImageToImage:
		results, err = e.SearchImageByImage(ctx, ByPath(req.ImagePath), req.ImageThreshold)
	case TypeTextToVideo:
		results, err = e.SearchVideoByText(ctx, req.Positive, req.Negative, req.PositiveThreshold, req.NegativeThreshold)
	case TypeImageToVideo:
		results, err = e.SearchVideoByImage(ctx, ByPath(req.ImagePath), req.ImageThreshold)
	case TypeMatch:
		ref := ByPath(req.ImagePath)
		if req.ImageID > 0 {
			ref = ByID(req.ImageID)
		}
		score, ok, merr := e.MatchTextAndImage(ctx, req.Positive, ref)
		if merr != nil || !ok {
			return nil, merr
		}
		return []Result{{Kind: KindMatch, Path: req.ImagePath, Score: score, scored: true}}, nil
	case TypeIDToImage:
		results, err = e.SearchImageByImage(ctx, ByID(req.ImageID), req.ImageThreshold)
	case TypeIDToVideo:
		results, err = e.SearchVideoByImage(ctx, ByID(req.ImageID), req.ImageThreshold)
	case TypePathToImage:
		results, err = e.SearchImageByPath(ctx, req.Positive)
	case TypePathToVideo:
		results, err = e.SearchVideoByPath(ctx, req.Positive)
	default:
		e.logger.Warn("unknown search type", "type", int(req.Type))
		return nil, fmt.Errorf("%w: %d", ErrUnknownSearchKind, int(req.Type))
	}
	if err != nil {
		return nil, err
	}

	results = truncate(results, req.MaxResults)
	return truncate(results, req.TopN), nil
}

// truncate returns a copy of at most n results. n <= 0 keeps everything.
func truncate(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return append([]Result(nil), results...)
}
