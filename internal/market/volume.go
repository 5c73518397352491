package market

import (
	"context"
	"sync"

	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// VolumeSource reports a token's 24h volume.
type VolumeSource interface {
	Name() string
	GetVolume24h(ctx context.Context, mint solana.PublicKey) (safety.VolumeSample, error)
}

// CollectVolumes queries every source concurrently and returns the samples
// that succeeded, in source order. Failed sources are logged and left out.
func CollectVolumes(ctx context.Context, mint solana.PublicKey, sources []VolumeSource, log logrus.FieldLogger) []safety.VolumeSample {
	results := make([]*safety.VolumeSample, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src VolumeSource) {
			defer wg.Done()
			sample, err := src.GetVolume24h(ctx, mint)
			if err != nil {
				if log != nil {
					log.WithError(err).WithFields(logrus.Fields{
						"source": src.Name(),
						"mint":   mint.String(),
					}).Debug("Volume source unavailable")
				}
				return
			}
			results[i] = &sample
		}(i, src)
	}
	wg.Wait()

	samples := make([]safety.VolumeSample, 0, len(sources))
	for _, s := range results {
		if s != nil {
			samples = append(samples, *s)
		}
	}
	return samples
}
