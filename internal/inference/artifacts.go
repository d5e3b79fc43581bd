package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"farm-health-service/internal/config"
	miniodb "farm-health-service/internal/database/minio"
)

// ArtifactStore locates the pre-trained model artifacts in object storage.
// Artifact presence is verified once per process, and the training-time
// feature means companion is downloaded and decoded once; concurrent
// first-use is guarded so every run shares the same loaded state.
type ArtifactStore struct {
	minio *miniodb.MinioClient
	cfg   config.InferenceConfig

	verifyOnce sync.Once
	verifyErr  error

	meansOnce sync.Once
	means     map[string]float64
	meansErr  error
}

func NewArtifactStore(minioClient *miniodb.MinioClient, cfg config.InferenceConfig) *ArtifactStore {
	return &ArtifactStore{minio: minioClient, cfg: cfg}
}

// VerifyModels checks that both model artifacts exist in the bucket. A
// missing artifact is a fatal condition for every run, surfaced with the
// artifact and location in the error.
func (s *ArtifactStore) VerifyModels(ctx context.Context) error {
	s.verifyOnce.Do(func() {
		for _, object := range []string{s.cfg.AnomalyModelObject, s.cfg.ForecastModelObject} {
			exists, err := s.minio.ObjectExists(ctx, s.cfg.ArtifactBucket, object)
			if err != nil {
				s.verifyErr = fmt.Errorf("failed to check model artifact %s/%s: %w",
					s.cfg.ArtifactBucket, object, err)
				return
			}
			if !exists {
				s.verifyErr = fmt.Errorf("model artifact not found: %s/%s",
					s.cfg.ArtifactBucket, object)
				return
			}
			slog.Info("Model artifact verified", "bucket", s.cfg.ArtifactBucket, "object", object)
		}
	})
	return s.verifyErr
}

// FeatureMeans returns the training-time feature means used to impute
// missing anomaly features, loading them on first use.
func (s *ArtifactStore) FeatureMeans(ctx context.Context) (map[string]float64, error) {
	s.meansOnce.Do(func() {
		data, err := s.minio.ReadObject(ctx, s.cfg.ArtifactBucket, s.cfg.FeatureMeansObject)
		if err != nil {
			s.meansErr = fmt.Errorf("failed to download feature means %s/%s: %w",
				s.cfg.ArtifactBucket, s.cfg.FeatureMeansObject, err)
			return
		}

		var means map[string]float64
		if err := json.Unmarshal(data, &means); err != nil {
			s.meansErr = fmt.Errorf("failed to decode feature means %s/%s: %w",
				s.cfg.ArtifactBucket, s.cfg.FeatureMeansObject, err)
			return
		}

		s.means = means
		slog.Info("Feature means loaded", "object", s.cfg.FeatureMeansObject, "features", len(means))
	})
	return s.means, s.meansErr
}
