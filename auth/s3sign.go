package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// S3Signer wraps aws-sdk-go-v2's SigV4 canonical-request signer for the S3
// adapter. It deliberately only pulls in aws/signer/v4, not the full S3
// client: signing still has to flow through this module's own
// build->authorize->send->parse pipeline (§4.5) rather than an SDK call
// that would bypass the request engine entirely.
type S3Signer struct {
	credentials aws.Credentials
	region      string // mandatory: SigV4 canonical requests are region-scoped
	signer      *v4.Signer
}

// NewS3Signer builds a signer for one set of credentials in one region.
// Region is required; S3 SigV4 has no "auto-detect" fallback the way some
// unsigned S3-compatible clients do.
func NewS3Signer(accessKeyID, secretAccessKey, sessionToken, region string) *S3Signer {
	return &S3Signer{
		credentials: aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
		},
		region: region,
		signer: v4.NewSigner(),
	}
}

// SignRequest adds the Authorization/X-Amz-* headers a bare *http.Request
// needs to be accepted by S3. bodySHA256 is the hex-encoded SHA-256 of the
// request body, or the empty-body constant for GET/HEAD/DELETE.
func (s *S3Signer) SignRequest(ctx context.Context, req *http.Request, bodySHA256 string) error {
	if bodySHA256 == "" {
		bodySHA256 = emptyBodySHA256
	}
	return s.signer.SignHTTP(ctx, s.credentials, req, bodySHA256, "s3", s.region, time.Now())
}

// PayloadHash returns the hex SHA-256 of an in-memory body; streamed
// uploads that can't be hashed up front should use "UNSIGNED-PAYLOAD"
// instead of calling this.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// emptyBodySHA256 is the well-known SHA-256 of a zero-length payload,
// reused for every GET/HEAD/DELETE the S3 adapter signs.
const emptyBodySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
