// Command circuit-setup compiles the membership circuit for one or more
// tree depths, runs a Groth16 setup and writes the artifacts with their
// manifest to a local directory, optionally publishing them to S3.
package main

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/log"
)

func main() {
	var destination, baseURL string
	var depths []int
	var publish bool
	var s3Config semaphore.S3Config

	flag.StringVar(&destination, "destination", "artifacts", "destination folder for the artifacts")
	flag.IntSliceVar(&depths, "depth", []int{group.DefaultDepth}, "tree depth(s) to set up, comma-separated")
	flag.StringVar(&baseURL, "base-url", "", "http(s) location the artifacts will be served from, written to the manifest")
	flag.BoolVar(&publish, "s3.publish", false, "upload the artifacts and manifest to S3")
	flag.StringVar(&s3Config.Endpoint, "s3.endpoint", "", "S3 compatible endpoint")
	flag.StringVar(&s3Config.Region, "s3.region", "", "S3 region")
	flag.StringVar(&s3Config.Bucket, "s3.bucket", "", "S3 bucket")
	flag.StringVar(&s3Config.Prefix, "s3.prefix", "semaphore", "S3 key prefix")
	flag.StringVar(&s3Config.AccessKey, "s3.access-key", "", "S3 access key")
	flag.StringVar(&s3Config.SecretKey, "s3.secret-key", "", "S3 secret key")
	flag.BoolVar(&s3Config.Public, "s3.public", false, "make uploaded objects public-read")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	ctx := context.Background()
	var store *semaphore.S3Store
	if publish {
		if s3Config.Bucket == "" {
			log.Fatal("--s3.bucket is required with --s3.publish")
		}
		var err error
		if store, err = semaphore.NewS3Store(ctx, s3Config); err != nil {
			log.Fatalf("error creating S3 client: %v", err)
		}
	}

	cache, err := semaphore.NewCache(destination)
	if err != nil {
		log.Fatalf("error creating destination folder: %v", err)
	}
	log.Infow("destination folder", "path", destination)

	for _, depth := range depths {
		startTime := time.Now()
		log.Infow("compiling and setting up semaphore circuit...", "depth", depth)
		keys, err := semaphore.Setup(depth)
		if err != nil {
			log.Fatalf("error setting up circuit of depth %d: %v", depth, err)
		}
		log.Infow("circuit set up", "depth", depth, "constraints", keys.CCS.GetNbConstraints(),
			"elapsed", time.Since(startTime).String())

		ca, err := keys.Artifacts()
		if err != nil {
			log.Fatalf("error serializing artifacts: %v", err)
		}
		if baseURL != "" {
			ca.WithBaseURL(baseURL)
		}
		if err := cache.StoreAll(ca); err != nil {
			log.Fatalf("error writing artifacts: %v", err)
		}
		manifest, err := cache.WriteManifest(ca)
		if err != nil {
			log.Fatalf("error writing manifest: %v", err)
		}
		log.Infow("artifacts written to disk", "depth", depth, "manifest", manifest,
			"circuit", ca.Circuit.Hash.Hex(),
			"provingKey", ca.ProvingKey.Hash.Hex(),
			"verifyingKey", ca.VerifyingKey.Hash.Hex())

		if store != nil {
			if err := store.Publish(ctx, ca); err != nil {
				log.Fatalf("error publishing artifacts of depth %d: %v", depth, err)
			}
			log.Infow("artifacts published", "depth", depth, "manifest", store.URL(semaphore.ManifestName(depth)))
		}
	}
	log.Info("all circuit artifacts ready")
}
