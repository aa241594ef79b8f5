// Package virtualsigstore signs test models against an in-process sigstore
// instance, producing bundles and trusted roots that verify offline.
package virtualsigstore

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"
	"unsafe"

	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	protocommon "github.com/sigstore/protobuf-specs/gen/pb-go/common/v1"
	protorekor "github.com/sigstore/protobuf-specs/gen/pb-go/rekor/v1"
	prototrustroot "github.com/sigstore/protobuf-specs/gen/pb-go/trustroot/v1"
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/testing/ca"
	"github.com/sigstore/sigstore-go/pkg/tlog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	timestamppb "google.golang.org/protobuf/types/known/timestamppb"
)

const (
	trustedRootMediaType = "application/vnd.dev.sigstore.trustedroot+json;version=0.1"

	// bundle v0.1 accepts an inclusion promise without an inclusion proof,
	// which is all the virtual log produces.
	bundleMediaType = "application/vnd.dev.sigstore.bundle+json;version=0.1"
)

// VirtualSigstore is an offline CA, transparency log, and timestamp authority.
type VirtualSigstore struct {
	vs *ca.VirtualSigstore
}

// New creates a VirtualSigstore with fresh keys.
func New() (*VirtualSigstore, error) {
	vs, err := ca.NewVirtualSigstore()
	if err != nil {
		return nil, fmt.Errorf("create virtual sigstore: %w", err)
	}
	return &VirtualSigstore{vs: vs}, nil
}

// SignedModel is a model signed by the virtual instance.
type SignedModel struct {
	Data       []byte
	BundleJSON []byte
	Identity   string
	Issuer     string
}

// Sign issues a certificate for identity and issuer and signs data with it.
func (v *VirtualSigstore) Sign(identity, issuer string, data []byte) (*SignedModel, error) {
	entity, err := v.vs.Sign(identity, issuer, data)
	if err != nil {
		return nil, fmt.Errorf("sign model: %w", err)
	}

	pb, err := toBundle(entity)
	if err != nil {
		return nil, fmt.Errorf("convert to bundle: %w", err)
	}
	bundleJSON, err := protojson.Marshal(pb)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}

	return &SignedModel{Data: data, BundleJSON: bundleJSON, Identity: identity, Issuer: issuer}, nil
}

// Fixture is a signed model written to disk.
type Fixture struct {
	ModelPath       string
	BundlePath      string
	TrustedRootPath string
}

// WriteFixture signs data and writes the model, its bundle, and the trusted
// root into dir. The bundle is named after the model with ".sigstore.json".
func (v *VirtualSigstore) WriteFixture(dir, name, identity, issuer string, data []byte) (*Fixture, error) {
	signed, err := v.Sign(identity, issuer, data)
	if err != nil {
		return nil, err
	}
	trJSON, err := v.TrustedRootJSON()
	if err != nil {
		return nil, err
	}

	fx := &Fixture{
		ModelPath:       filepath.Join(dir, name),
		BundlePath:      filepath.Join(dir, name+".sigstore.json"),
		TrustedRootPath: filepath.Join(dir, "trusted_root.json"),
	}
	for path, content := range map[string][]byte{
		fx.ModelPath:       data,
		fx.BundlePath:      signed.BundleJSON,
		fx.TrustedRootPath: trJSON,
	} {
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return nil, fmt.Errorf("write fixture: %w", err)
		}
	}
	return fx, nil
}

// TrustedRootJSON returns a trusted root covering the virtual instance.
func (v *VirtualSigstore) TrustedRootJSON() ([]byte, error) {
	tr := &prototrustroot.TrustedRoot{MediaType: trustedRootMediaType}

	var err error
	if tr.Tlogs, err = logInstances(v.vs.RekorLogs()); err != nil {
		return nil, fmt.Errorf("rekor logs: %w", err)
	}
	if tr.Ctlogs, err = logInstances(v.vs.CTLogs()); err != nil {
		return nil, fmt.Errorf("ct logs: %w", err)
	}
	for _, fca := range v.vs.FulcioCertificateAuthorities() {
		fulcio, ok := fca.(*root.FulcioCertificateAuthority)
		if !ok {
			return nil, fmt.Errorf("unexpected Fulcio CA type: %T", fca)
		}
		tr.CertificateAuthorities = append(tr.CertificateAuthorities, authority(
			fulcio.URI, nil, fulcio.Intermediates, fulcio.Root,
			fulcio.ValidityPeriodStart, fulcio.ValidityPeriodEnd,
		))
	}
	for _, tsa := range v.vs.TimestampingAuthorities() {
		sts, ok := tsa.(*root.SigstoreTimestampingAuthority)
		if !ok {
			return nil, fmt.Errorf("unexpected TSA type: %T", tsa)
		}
		tr.TimestampAuthorities = append(tr.TimestampAuthorities, authority(
			sts.URI, sts.Leaf, sts.Intermediates, sts.Root,
			sts.ValidityPeriodStart, sts.ValidityPeriodEnd,
		))
	}

	return protojson.Marshal(tr)
}

// TrustedMaterial returns the virtual instance as trusted material.
func (v *VirtualSigstore) TrustedMaterial() root.TrustedMaterial {
	return v.vs
}

func logInstances(logs map[string]*root.TransparencyLog) ([]*prototrustroot.TransparencyLogInstance, error) {
	out := make([]*prototrustroot.TransparencyLogInstance, 0, len(logs))
	for logID, l := range logs {
		pkBytes, err := x509.MarshalPKIXPublicKey(l.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("marshal public key: %w", err)
		}
		keyID, err := hex.DecodeString(logID)
		if err != nil {
			return nil, fmt.Errorf("decode log ID: %w", err)
		}
		out = append(out, &prototrustroot.TransparencyLogInstance{
			BaseUrl:       l.BaseURL,
			HashAlgorithm: protocommon.HashAlgorithm_SHA2_256,
			PublicKey: &protocommon.PublicKey{
				RawBytes:   pkBytes,
				KeyDetails: protocommon.PublicKeyDetails_PKIX_ECDSA_P256_SHA_256,
				ValidFor:   timeRange(l.ValidityPeriodStart, l.ValidityPeriodEnd),
			},
			LogId: &protocommon.LogId{KeyId: keyID},
		})
	}
	return out, nil
}

func authority(uri string, leaf *x509.Certificate, intermediates []*x509.Certificate, rootCert *x509.Certificate, start, end time.Time) *prototrustroot.CertificateAuthority {
	var chain []*protocommon.X509Certificate
	if leaf != nil {
		chain = append(chain, &protocommon.X509Certificate{RawBytes: leaf.Raw})
	}
	for _, c := range intermediates {
		chain = append(chain, &protocommon.X509Certificate{RawBytes: c.Raw})
	}
	chain = append(chain, &protocommon.X509Certificate{RawBytes: rootCert.Raw})

	return &prototrustroot.CertificateAuthority{
		Uri: uri,
		Subject: &protocommon.DistinguishedName{
			Organization: rootCert.Subject.Organization[0],
			CommonName:   rootCert.Subject.CommonName,
		},
		ValidFor:  timeRange(start, end),
		CertChain: &protocommon.X509CertificateChain{Certificates: chain},
	}
}

func timeRange(start, end time.Time) *protocommon.TimeRange {
	return &protocommon.TimeRange{Start: timestamppb.New(start), End: timestamppb.New(end)}
}

// toBundle converts a signed test entity into a v0.1 protobuf bundle.
func toBundle(entity *ca.TestEntity) (*protobundle.Bundle, error) {
	vc, err := entity.VerificationContent()
	if err != nil {
		return nil, fmt.Errorf("get verification content: %w", err)
	}
	cert, ok := vc.(*bundle.Certificate)
	if !ok {
		return nil, fmt.Errorf("unexpected verification content type: %T", vc)
	}

	material := &protobundle.VerificationMaterial{
		Content: &protobundle.VerificationMaterial_Certificate{
			Certificate: &protocommon.X509Certificate{RawBytes: cert.Certificate().Raw},
		},
	}

	entries, err := entity.TlogEntries()
	if err != nil {
		return nil, fmt.Errorf("get tlog entries: %w", err)
	}
	for _, entry := range entries {
		tle, err := withPromise(entry)
		if err != nil {
			return nil, err
		}
		material.TlogEntries = append(material.TlogEntries, tle)
	}

	timestamps, err := entity.Timestamps()
	if err != nil {
		return nil, fmt.Errorf("get timestamps: %w", err)
	}
	if len(timestamps) > 0 {
		material.TimestampVerificationData = &protobundle.TimestampVerificationData{}
		for _, ts := range timestamps {
			material.TimestampVerificationData.Rfc3161Timestamps = append(
				material.TimestampVerificationData.Rfc3161Timestamps,
				&protocommon.RFC3161SignedTimestamp{SignedTimestamp: ts},
			)
		}
	}

	sigContent, err := entity.SignatureContent()
	if err != nil {
		return nil, fmt.Errorf("get signature content: %w", err)
	}
	msgSig, ok := sigContent.(*bundle.MessageSignature)
	if !ok {
		return nil, fmt.Errorf("unexpected signature content type: %T", sigContent)
	}

	return &protobundle.Bundle{
		MediaType:            bundleMediaType,
		VerificationMaterial: material,
		Content: &protobundle.Bundle_MessageSignature{
			MessageSignature: &protocommon.MessageSignature{
				MessageDigest: &protocommon.HashOutput{
					Algorithm: protocommon.HashAlgorithm_SHA2_256,
					Digest:    msgSig.Digest(),
				},
				Signature: msgSig.Signature(),
			},
		},
	}, nil
}

// withPromise copies a log entry, filling in the kind and the signed entry
// timestamp the virtual log keeps out of TransparencyLogEntry.
func withPromise(entry *tlog.Entry) (*protorekor.TransparencyLogEntry, error) {
	tle, ok := proto.Clone(entry.TransparencyLogEntry()).(*protorekor.TransparencyLogEntry)
	if !ok {
		return nil, errors.New("unexpected transparency log entry type")
	}
	if tle.KindVersion == nil {
		tle.KindVersion = &protorekor.KindVersion{Kind: "hashedrekord", Version: "0.0.1"}
	}
	if entry.HasInclusionPromise() && tle.InclusionPromise == nil {
		if set := signedEntryTimestamp(entry); len(set) > 0 {
			tle.InclusionPromise = &protorekor.InclusionPromise{SignedEntryTimestamp: set}
		}
	}
	return tle, nil
}

func signedEntryTimestamp(entry *tlog.Entry) []byte {
	f := reflect.ValueOf(entry).Elem().FieldByName("signedEntryTimestamp")
	if !f.IsValid() || f.IsZero() {
		return nil
	}
	return *(*[]byte)(unsafe.Pointer(f.UnsafeAddr()))
}
