// Package parameters reads secrets from AWS Systems Manager Parameter Store.
package parameters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.uber.org/zap"

	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// API is the subset of the SSM client used by Store.
type API interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ API = (*ssm.Client)(nil)

// Store fetches decrypted parameters and keeps them for the life of the
// process. Parameters change only with a deploy.
type Store struct {
	client  API
	probe   string
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewStore creates a Store. probe names the parameter Ping reads.
func NewStore(client API, probe string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("SSM client is required")
	}
	if probe == "" {
		return nil, errors.New("probe parameter name is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		client:  client,
		probe:   probe,
		timeout: timeout,
		logger:  logger.Named("parameters"),
		cache:   make(map[string]string),
	}, nil
}

// Get returns the value of name. Failures are not cached.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	v, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := s.fetch(ctx, name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[name] = v
	s.mu.Unlock()
	return v, nil
}

// Ping reads the probe parameter, bypassing the cache.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.fetch(ctx, s.probe)
	return err
}

func (s *Store) fetch(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", s.translate(name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", appErrors.NewNotFound("parameter " + name + " has no value")
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (s *Store) translate(name string, err error) error {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return appErrors.NewNotFound("parameter " + name + " not found")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Warn("Parameter read timed out", zap.String("parameter", name), zap.Error(err))
		return appErrors.NewUnavailable("read parameter "+name+" timed out", err)
	}
	s.logger.Warn("Parameter read failed", zap.String("parameter", name), zap.Error(err))
	return appErrors.NewUnavailable("read parameter "+name, err)
}
