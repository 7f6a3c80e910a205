// Package firestore is the verdict store on Cloud Firestore
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

const (
	verificationsCollection = "verifications"
	feedbackCollection      = "feedback"
)

// verdictDoc is the stored shape of a verdict
type verdictDoc struct {
	UserID             string             `firestore:"userId"`
	ContentType        string             `firestore:"contentType"`
	ContentText        string             `firestore:"contentText"`
	ContentURL         string             `firestore:"contentUrl"`
	ContentHash        string             `firestore:"contentHash"`
	Verdict            string             `firestore:"verdict"`
	ConfidenceScore    int                `firestore:"confidenceScore"`
	Explanation        string             `firestore:"explanation"`
	Sources            []string           `firestore:"sources"`
	RedFlags           []string           `firestore:"redFlags"`
	PositiveIndicators []string           `firestore:"positiveIndicators"`
	VideoMetadata      *model.VideoRef    `firestore:"videoMetadata,omitempty"`
	AnalysisMeta       model.AnalysisMeta `firestore:"analysisMeta"`
	CachedFrom         string             `firestore:"cachedFrom"`
	CreatedAt          time.Time          `firestore:"createdAt"`
}

type feedbackDoc struct {
	UserID         string    `firestore:"userId"`
	VerificationID string    `firestore:"verificationId,omitempty"`
	FeedbackType   string    `firestore:"feedbackType"`
	Subject        string    `firestore:"subject"`
	Message        string    `firestore:"message"`
	Rating         *int      `firestore:"rating,omitempty"`
	Status         string    `firestore:"status"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// Store implements store.Store on a Firestore client
type Store struct {
	client *firestore.Client
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New creates a client for projectID. Credentials come from the
// environment unless opts say otherwise.
func New(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating firestore client, %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

func (s *Store) Save(ctx context.Context, v *model.Verdict) error {
	if err := store.PrepareVerdict(v, time.Now()); err != nil {
		return err
	}
	doc := verdictDoc{
		UserID:             v.UserID,
		ContentType:        string(v.ContentType),
		ContentText:        v.ContentText,
		ContentURL:         v.ContentURL,
		ContentHash:        store.ContentHash(v.ContentType, v.ContentText, v.ContentURL),
		Verdict:            string(v.Label),
		ConfidenceScore:    v.Confidence,
		Explanation:        v.Explanation,
		Sources:            v.Sources,
		RedFlags:           v.RedFlags,
		PositiveIndicators: v.PositiveIndicators,
		VideoMetadata:      v.Video,
		AnalysisMeta:       v.Meta,
		CachedFrom:         v.Meta.CachedFrom,
		CreatedAt:          v.CreatedAt,
	}
	if _, err := s.client.Collection(verificationsCollection).Doc(v.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("error creating document, %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Verdict, error) {
	ds, err := s.client.Collection(verificationsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting document, %w", err)
	}
	return decode(ds)
}

func (s *Store) FetchRecent(ctx context.Context, limit int, userID string) ([]model.Verdict, error) {
	q := s.client.Collection(verificationsCollection).Query
	if userID != "" {
		q = q.Where("userId", "==", userID)
	}
	q = q.OrderBy("createdAt", firestore.Desc).Limit(store.ClampLimit(limit))

	out := []model.Verdict{}
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		ds, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error listing documents, %w", err)
		}
		v, err := decode(ds)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *Store) FindRecentByContent(ctx context.Context, contentType model.ContentType, text, url string, since time.Time) (*model.Verdict, error) {
	iter := s.client.Collection(verificationsCollection).
		Where("contentHash", "==", store.ContentHash(contentType, text, url)).
		Where("cachedFrom", "==", "").
		Where("createdAt", ">=", since).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	ds, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying documents, %w", err)
	}
	return decode(ds)
}

func (s *Store) SaveFeedback(ctx context.Context, f *model.Feedback) error {
	store.PrepareFeedback(f, time.Now())
	doc := feedbackDoc{
		UserID:         f.UserID,
		VerificationID: f.VerificationID,
		FeedbackType:   string(f.Type),
		Subject:        f.Subject,
		Message:        f.Message,
		Rating:         f.Rating,
		Status:         f.Status,
		CreatedAt:      f.CreatedAt,
	}
	if _, err := s.client.Collection(feedbackCollection).Doc(f.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("error creating document, %w", err)
	}
	return nil
}

// Stats runs one count aggregation per label
func (s *Store) Stats(ctx context.Context, userID string) (model.Stats, error) {
	counts := make(map[model.Label]int)
	for _, label := range model.Labels {
		q := s.client.Collection(verificationsCollection).Where("verdict", "==", string(label))
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		res, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
		if err != nil {
			return model.Stats{}, fmt.Errorf("error counting documents, %w", err)
		}
		if v, ok := res["count"].(*firestorepb.Value); ok {
			counts[label] = int(v.GetIntegerValue())
		}
	}
	return model.NewStats(counts), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decode(ds *firestore.DocumentSnapshot) (*model.Verdict, error) {
	var doc verdictDoc
	if err := ds.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("error decoding document, %w", err)
	}
	return &model.Verdict{
		ID:                 ds.Ref.ID,
		UserID:             doc.UserID,
		ContentType:        model.ContentType(doc.ContentType),
		ContentText:        doc.ContentText,
		ContentURL:         doc.ContentURL,
		Label:              model.Label(doc.Verdict),
		Confidence:         doc.ConfidenceScore,
		Explanation:        doc.Explanation,
		Sources:            nonNil(doc.Sources),
		RedFlags:           nonNil(doc.RedFlags),
		PositiveIndicators: nonNil(doc.PositiveIndicators),
		Video:              doc.VideoMetadata,
		Meta:               doc.AnalysisMeta,
		CreatedAt:          doc.CreatedAt.UTC(),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
