package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/prover"
)

// ArtifactsConfig says where the circuit keys of each depth come from.
type ArtifactsConfig struct {
	Dir string
	// BaseURL is an http(s) or s3:// location with published manifests.
	BaseURL string
	S3      *semaphore.S3Store
	// Setup runs a local Groth16 setup for depths neither cached nor
	// published.
	Setup   bool
	Depths  []int
	Timeout time.Duration
}

// PrepareArtifacts loads the circuit keys of every configured depth
// concurrently: from the local cache, else from the published manifest,
// else from a local setup when enabled.
func PrepareArtifacts(ctx context.Context, conf ArtifactsConfig) (*prover.KeyRing, error) {
	if len(conf.Depths) == 0 {
		return nil, fmt.Errorf("no tree depths configured")
	}
	cache, err := semaphore.NewCache(conf.Dir)
	if err != nil {
		return nil, err
	}
	cache.S3 = conf.S3
	if conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Timeout)
		defer cancel()
	}

	ring := prover.NewKeyRing()
	g, ctx := errgroup.WithContext(ctx)
	for _, depth := range conf.Depths {
		g.Go(func() error {
			keys, err := prepareDepth(ctx, cache, conf, depth)
			if err != nil {
				return fmt.Errorf("depth %d: %w", depth, err)
			}
			ring.Add(keys)
			return nil
		})
	}
	log.Infow("preparing zkSNARK circuit artifacts", "depths", conf.Depths, "dir", conf.Dir,
		"url", conf.BaseURL, "setup", conf.Setup)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ring, nil
}

func prepareDepth(ctx context.Context, cache *semaphore.Cache, conf ArtifactsConfig, depth int) (*semaphore.Keys, error) {
	ca, err := cache.ReadManifest(depth)
	if err == nil {
		if err = cache.LoadAll(ca); err == nil {
			log.Debugw("circuit artifacts loaded from cache", "depth", depth)
			return semaphore.KeysFromArtifacts(ca)
		}
	}
	if !errors.Is(err, semaphore.ErrArtifactMissing) {
		log.Warnw("cached circuit artifacts unusable", "depth", depth, "error", err.Error())
	}

	switch {
	case conf.BaseURL != "":
		ca, err := cache.FetchManifest(ctx, conf.BaseURL, depth)
		if err != nil {
			return nil, fmt.Errorf("fetch manifest: %w", err)
		}
		if err := cache.DownloadAll(ctx, ca); err != nil {
			return nil, err
		}
		if _, err := cache.WriteManifest(ca); err != nil {
			return nil, err
		}
		log.Infow("circuit artifacts downloaded", "depth", depth)
		return semaphore.KeysFromArtifacts(ca)
	case conf.Setup:
		start := time.Now()
		keys, err := semaphore.Setup(depth)
		if err != nil {
			return nil, err
		}
		ca, err := keys.Artifacts()
		if err != nil {
			return nil, err
		}
		if err := cache.StoreAll(ca); err != nil {
			return nil, err
		}
		if _, err := cache.WriteManifest(ca); err != nil {
			return nil, err
		}
		log.Warnw("circuit keys generated by a local single party setup", "depth", depth,
			"took", time.Since(start).String())
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: no artifacts url configured and local setup disabled", semaphore.ErrArtifactMissing)
	}
}
