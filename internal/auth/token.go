package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"authflow-go/internal/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// CallbackResult is what a verified callback yields.
type CallbackResult struct {
	Token   *oauth2.Token
	Subject string
	Nonce   string
}

// CallbackCompleter validates an authorization callback against its stored
// flow record and exchanges the code for tokens.
type CallbackCompleter struct {
	config   *oauth2.Config
	store    FlowStore
	verifier IDTokenVerifier
	logger   logrus.FieldLogger
}

// NewCallbackCompleter creates a new CallbackCompleter.
func NewCallbackCompleter(config *oauth2.Config, store FlowStore, verifier IDTokenVerifier, logger logrus.FieldLogger) *CallbackCompleter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CallbackCompleter{
		config:   config,
		store:    store,
		verifier: verifier,
		logger:   logger,
	}
}

// Complete consumes the flow record for flowID, checks state, exchanges code
// with the stored code verifier and checks the ID token nonce. The record is
// consumed even when a later check fails.
func (c *CallbackCompleter) Complete(ctx context.Context, flowID, code, state string) (*CallbackResult, error) {
	res, err := c.complete(ctx, flowID, code, state)
	outcome := "success"
	if err != nil {
		outcome = callbackOutcome(err)
		c.logger.WithFields(logrus.Fields{"flow_id": flowID, "outcome": outcome}).Warn("authorization callback rejected")
	}
	metrics.CallbacksCompleted.WithLabelValues(outcome).Inc()
	return res, err
}

// Abandon consumes the flow record for flowID without completing it, for
// callbacks where the authorization server reported an error. A missing
// record is not an error.
func (c *CallbackCompleter) Abandon(ctx context.Context, flowID string) error {
	metrics.CallbacksCompleted.WithLabelValues("denied").Inc()
	if _, err := c.store.Take(ctx, flowID); err != nil && !errors.Is(err, ErrFlowNotFound) {
		return fmt.Errorf("failed to discard flow: %w", err)
	}
	c.logger.WithField("flow_id", flowID).Debug("authorization flow abandoned")
	return nil
}

func (c *CallbackCompleter) complete(ctx context.Context, flowID, code, state string) (*CallbackResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code cannot be empty", ErrInvalidCallback)
	}
	if state == "" {
		return nil, fmt.Errorf("%w: state cannot be empty", ErrInvalidCallback)
	}

	rec, err := c.store.Take(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(rec.State), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}

	token, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(rec.CodeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, ErrMissingIDToken
	}
	claims, err := c.verifier.Verify(rawIDToken)
	if err != nil {
		return nil, err
	}
	if err := VerifyNonce(rec.NonceOriginal, claims.Nonce); err != nil {
		return nil, err
	}

	return &CallbackResult{
		Token:   token,
		Subject: claims.Subject,
		Nonce:   claims.Nonce,
	}, nil
}

func callbackOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCallback):
		return "invalid_request"
	case errors.Is(err, ErrFlowNotFound):
		return "flow_not_found"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrTokenExchange):
		return "exchange_failed"
	case errors.Is(err, ErrMissingIDToken):
		return "missing_id_token"
	case errors.Is(err, ErrNonceMismatch):
		return "nonce_mismatch"
	default:
		return "error"
	}
}
