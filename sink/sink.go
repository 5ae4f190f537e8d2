// Package sink persists recorded answers once a session hands them off.
package sink

import (
	"context"
	"fmt"

	"github.com/bosley/snipe/config"
	"github.com/bosley/snipe/recording"
)

type Sink interface {
	Save(ctx context.Context, artifact recording.Artifact) error
}

// FromConfig builds the sink named by cfg.Sink.
func FromConfig(cfg *config.Config) (Sink, error) {
	switch cfg.Sink {
	case "local":
		return NewLocal(cfg.RecordingsDir), nil
	case "remote":
		tlsConfig, err := TLSConfig(cfg.InsecureTLS, cfg.ServerCert)
		if err != nil {
			return nil, err
		}
		return NewRemote(cfg.UploadAddr, cfg.Token, tlsConfig), nil
	case "s3":
		return NewS3(cfg.S3Bucket, cfg.S3Region)
	}
	return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
}
