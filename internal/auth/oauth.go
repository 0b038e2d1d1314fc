package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"authflow-go/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// FlowConfig describes the client and the authorization server.
type FlowConfig struct {
	AuthorizationURL string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	VerifierLength   int
	// SingleFlow keeps a single flow record under the bare storage keys; a new
	// flow overwrites the previous one.
	SingleFlow bool
}

// OAuth2Config builds the oauth2.Config shared by the initiator and the callback completer.
func (c FlowConfig) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizationURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Navigator hands the user agent over to a URL. The transition is one way.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Redirect is the outcome of a successful flow initiation.
type Redirect struct {
	FlowID        string
	URL           string
	State         string
	CodeChallenge string
	Nonce         string
}

// FlowInitiator generates flow secrets, persists them and builds the
// authorization redirect.
type FlowInitiator struct {
	cfg    FlowConfig
	oauth  *oauth2.Config
	store  FlowStore
	pkce   PKCEStore
	random io.Reader
	newID  func() string
	logger logrus.FieldLogger
}

// FlowOption customises a FlowInitiator.
type FlowOption func(*FlowInitiator)

// WithRandomSource replaces crypto/rand as the source of all flow secrets.
func WithRandomSource(r io.Reader) FlowOption {
	return func(f *FlowInitiator) {
		f.random = r
		f.pkce = NewPKCEGeneratorWithSource(r)
	}
}

// WithLogger sets the logger used for flow events.
func WithLogger(l logrus.FieldLogger) FlowOption {
	return func(f *FlowInitiator) { f.logger = l }
}

// WithFlowIDGenerator overrides how flow identifiers are minted.
func WithFlowIDGenerator(gen func() string) FlowOption {
	return func(f *FlowInitiator) { f.newID = gen }
}

// NewFlowInitiator creates a new FlowInitiator.
func NewFlowInitiator(cfg FlowConfig, store FlowStore, opts ...FlowOption) (*FlowInitiator, error) {
	if cfg.AuthorizationURL == "" {
		return nil, fmt.Errorf("authorization URL cannot be empty")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirect URI cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("flow store cannot be nil")
	}
	if cfg.VerifierLength == 0 {
		cfg.VerifierLength = DefaultVerifierLength
	}
	if cfg.VerifierLength < MinVerifierLength || cfg.VerifierLength > MaxVerifierLength {
		return nil, fmt.Errorf("verifier length must be between %d and %d", MinVerifierLength, MaxVerifierLength)
	}

	f := &FlowInitiator{
		cfg:    cfg,
		oauth:  cfg.OAuth2Config(),
		store:  store,
		pkce:   NewPKCEGenerator(),
		random: rand.Reader,
		newID:  uuid.NewString,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Start runs the whole initiation sequence except navigation. Nothing is
// persisted unless every secret was generated, and the returned redirect is
// only usable once the record has been written.
func (f *FlowInitiator) Start(ctx context.Context) (*Redirect, error) {
	started := time.Now()
	defer func() {
		metrics.FlowInitiationDuration.Observe(time.Since(started).Seconds())
	}()

	stateRaw, err := GenerateRandomBytes(f.random, MinStateBytes)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("state").Inc()
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	state := Base64URLEncode(stateRaw)

	verifier, err := f.pkce.GenerateCodeVerifier(f.cfg.VerifierLength)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("verifier").Inc()
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	challenge, err := f.pkce.GenerateCodeChallenge(verifier)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("verifier").Inc()
		return nil, fmt.Errorf("failed to generate code challenge: %w", err)
	}

	nonceRaw, err := GenerateRandomBytes(f.random, NonceBytes)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("nonce").Inc()
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonceOriginal := Base64URLEncode(nonceRaw)
	nonce := ComputeNonce(nonceRaw)

	authURL := f.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	flowID := ""
	if !f.cfg.SingleFlow {
		flowID = f.newID()
	}

	rec := FlowRecord{
		CodeVerifier:  verifier,
		State:         state,
		NonceOriginal: nonceOriginal,
	}
	if err := f.store.Put(ctx, flowID, rec); err != nil {
		metrics.FlowsFailed.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("failed to persist flow: %w", err)
	}

	metrics.FlowsStarted.Inc()
	f.logger.WithField("flow_id", flowID).Debug("authorization flow started")

	return &Redirect{
		FlowID:        flowID,
		URL:           authURL,
		State:         state,
		CodeChallenge: challenge,
		Nonce:         nonce,
	}, nil
}

// Initiate starts a flow and navigates to the authorization endpoint.
func (f *FlowInitiator) Initiate(ctx context.Context, nav Navigator) (*Redirect, error) {
	if nav == nil {
		return nil, fmt.Errorf("navigator cannot be nil")
	}
	redirect, err := f.Start(ctx)
	if err != nil {
		return nil, err
	}
	if err := nav.Navigate(ctx, redirect.URL); err != nil {
		metrics.FlowsFailed.WithLabelValues("navigate").Inc()
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	return redirect, nil
}
