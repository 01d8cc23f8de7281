// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package trust

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"slices"
	"time"

	"github.com/H0llyW00dzZ/cms-signature-trust/src/config"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/cms"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/tsa"
	x509chain "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/chain"
	x509fetch "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/revocation"
	x509verify "github.com/H0llyW00dzZ/cms-signature-trust/src/internal/x509/verify"
	"github.com/H0llyW00dzZ/cms-signature-trust/src/logger"
)

// DefaultEstimatedSize is reserved for a signature when neither the caller
// nor the configuration gives a size.
const DefaultEstimatedSize = 16384

// Service wires the completion, verification and signing components from a
// Config. The CRL cache is shared by every client it creates.
//
// Thread Safety: Safe for concurrent use after New returns.
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	http    *x509fetch.HTTPConfig
	cache   *x509fetch.CRLCache
	anchors []*x509.Certificate
	crls    [][]byte
}

// New loads the trust anchors and offline CRLs named by cfg. A nil cfg uses
// config.Default.
func New(cfg *config.Config, version string, log logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	anchors, err := cfg.LoadAnchors()
	if err != nil {
		return nil, fmt.Errorf("trust anchors: %w", err)
	}
	crls, err := cfg.LoadCRLs()
	if err != nil {
		return nil, fmt.Errorf("offline CRLs: %w", err)
	}
	return &Service{
		cfg:     cfg,
		log:     logger.OrNop(log),
		http:    cfg.HTTPConfig(version),
		cache:   x509fetch.NewCRLCache(cfg.CRLCacheConfig()),
		anchors: anchors,
		crls:    crls,
	}, nil
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.cfg }

// Anchors returns a copy of the loaded trust anchors.
func (s *Service) Anchors() []*x509.Certificate { return slices.Clone(s.anchors) }

// HTTPConfig returns the shared HTTP settings.
func (s *Service) HTTPConfig() *x509fetch.HTTPConfig { return s.http }

// CRLCache returns the shared CRL cache.
func (s *Service) CRLCache() *x509fetch.CRLCache { return s.cache }

// StartCacheCleanup evicts stale CRL cache entries until ctx is done.
func (s *Service) StartCacheCleanup(ctx context.Context) {
	s.cache.StartCleanup(ctx, s.cfg.CleanupInterval())
}

// Completer returns a chain completer fetching issuers over AIA.
func (s *Service) Completer() *x509chain.Completer {
	c := x509chain.NewCompleter(x509fetch.NewAIAFetcher(s.http, s.log), s.log)
	c.MaxChainLength = s.cfg.Trust.MaxChainLength
	return c
}

// CRLClient returns an online CRL client backed by the shared cache.
func (s *Service) CRLClient() *x509fetch.OnlineCRLClient {
	c := x509fetch.NewOnlineCRLClient(s.http, s.log, s.cfg.Revocation.CRLURLs...)
	c.SetCache(s.cache)
	return c
}

// OCSPClient returns an OCSP client. Responses are checked against the
// issuer only.
func (s *Service) OCSPClient() *x509fetch.OCSPClient {
	return x509fetch.NewOCSPClient(s.http, s.log, nil)
}

// online reports whether network revocation checks are enabled for a call.
func (s *Service) online(requested bool) bool { return requested || s.cfg.Revocation.Online }

// Checker returns a revocation checker trusting the loaded anchors.
func (s *Service) Checker(online bool) *revocation.Checker {
	cfg := revocation.Config{
		Anchors:        s.anchors,
		OnlineChecking: s.online(online),
		Logger:         s.log,
	}
	if cfg.OnlineChecking {
		cfg.CRLClient = s.CRLClient()
		cfg.OCSPClient = s.OCSPClient()
	}
	return revocation.NewChecker(cfg)
}

// VerifyOptions tunes VerifyChain.
type VerifyOptions struct {
	// CRLs and OCSPs are offline evidence on top of the configured CRL files.
	CRLs  [][]byte
	OCSPs [][]byte
	// Online enables network fallback even when the configuration does not.
	Online bool
	// Complete fetches missing issuers before verifying.
	Complete bool
	// Date is the reference time; now when zero.
	Date time.Time
}

// VerifyChain verifies chain against the trust anchors. It returns the chain
// actually verified, which differs from chain when completion added issuers.
func (s *Service) VerifyChain(ctx context.Context, chain []*x509.Certificate, opts VerifyOptions) (x509verify.ChainResult, []*x509.Certificate, error) {
	if opts.Complete {
		chain = s.Completer().Complete(ctx, chain)
	}
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}

	verifier := x509verify.Compose(x509verify.Options{
		Anchors: s.anchors,
		Checker: s.Checker(opts.Online),
		CRLs:    append(slices.Clone(s.crls), opts.CRLs...),
		OCSPs:   opts.OCSPs,
		Logger:  s.log,
	})
	result, err := x509verify.NewChainVerifier(verifier, s.anchors, s.log).VerifyChain(ctx, chain, date)
	return result, chain, err
}

// CheckRevocation evaluates evidence for cert issued by issuer at date. It
// tries CRLs first and falls back to OCSP when they settle nothing.
func (s *Service) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate, opts VerifyOptions) (revocation.Result, error) {
	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}
	checker := s.Checker(opts.Online)

	result, err := checker.CheckCRLs(ctx, append(slices.Clone(s.crls), opts.CRLs...), cert, issuer, date)
	if err != nil || result.Valid > 0 {
		return result, err
	}
	ocspResult, err := checker.CheckOCSPs(ctx, opts.OCSPs, cert, issuer, date)
	result.Valid += ocspResult.Valid
	result.Online = result.Online || ocspResult.Online
	result.Outcomes = append(result.Outcomes, ocspResult.Outcomes...)
	return result, err
}

// Signer wraps key for the configured digest. RSA keys sign with PSS when
// the configuration asks for it.
func (s *Service) Signer(key crypto.Signer) (*cms.KeySigner, error) {
	digest, err := s.cfg.DigestAlgorithm()
	if err != nil {
		return nil, err
	}
	var opts []cms.KeySignerOption
	if _, isRSA := key.Public().(*rsa.PublicKey); isRSA && s.cfg.Signing.PSS {
		opts = append(opts, cms.WithPSS())
	}
	return cms.NewKeySigner(key, digest, opts...)
}

// Timestamper returns the configured TSA client, or nil when no TSA URL is
// set.
func (s *Service) Timestamper() (*tsa.Client, error) {
	if s.cfg.TSA.URL == "" {
		return nil, nil
	}
	cfg, err := s.cfg.TSAConfig()
	if err != nil {
		return nil, err
	}
	return tsa.NewClient(cfg, s.http, s.log)
}

// Builder returns a container builder in the configured mode, stamping
// with the configured TSA if any.
func (s *Service) Builder(signer cms.ExternalSigner) (*cms.Builder, error) {
	mode, err := s.cfg.Mode()
	if err != nil {
		return nil, err
	}
	opts := cms.Options{
		Mode:             mode,
		RequireTimestamp: s.cfg.TSA.Required,
		Logger:           s.log,
	}
	ts, err := s.Timestamper()
	if err != nil {
		return nil, err
	}
	if ts != nil {
		opts.Timestamper = ts
	}
	return cms.NewBuilder(signer, opts)
}

// Evidence gathers revocation data to embed for chain. Offline CRL files
// are always consulted; the network only when online checking is enabled.
func (s *Service) Evidence(ctx context.Context, chain []*x509.Certificate, online bool) (cms.RevocationData, error) {
	var (
		crlClient  x509fetch.CRLClient
		ocspClient cms.OCSPEncoder
	)
	switch {
	case s.online(online):
		client := s.CRLClient()
		client.AddChain(chain)
		crlClient = client
		ocspClient = s.OCSPClient()
	case len(s.crls) > 0:
		crlClient = x509fetch.NewOfflineCRLClient(s.crls...)
	}
	return cms.CollectEvidence(ctx, chain, crlClient, ocspClient, s.log)
}

// BuildRequest assembles the request for signing digest with chain: the
// revocation evidence and the configured signature policy.
func (s *Service) BuildRequest(ctx context.Context, chain []*x509.Certificate, digest []byte, online bool) (cms.BuildRequest, error) {
	policy, err := s.cfg.SignaturePolicy()
	if err != nil {
		return cms.BuildRequest{}, err
	}
	evidence, err := s.Evidence(ctx, chain, online)
	if err != nil {
		return cms.BuildRequest{}, err
	}
	return cms.BuildRequest{
		Digest: digest,
		Chain:  chain,
		CRLs:   evidence.CRLs,
		OCSPs:  evidence.OCSPs,
		Policy: policy,
	}, nil
}

// EstimatedSize returns the placeholder size for req: the requested size if
// positive, then the configured size, then the builder's estimate.
func (s *Service) EstimatedSize(b *cms.Builder, req cms.BuildRequest, requested int) int {
	switch {
	case requested > 0:
		return requested
	case s.cfg.Signing.EstimatedSize > 0:
		return s.cfg.Signing.EstimatedSize
	case b != nil:
		return b.EstimateSize(req)
	default:
		return DefaultEstimatedSize
	}
}
