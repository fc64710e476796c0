package models

type ChallengeKind string

const (
	ChallengeThreeDS         ChallengeKind = "3DS"
	ChallengeExistingAccount ChallengeKind = "EXISTING_ACCOUNT"
)

// ChallengeContext holds the one pending out-of-band verification step, if any.
type ChallengeContext struct {
	Kind      ChallengeKind   `json:"kind"`
	FrameURL  string          `json:"frame"`
	PaymentID string          `json:"payment_id"`
	Email     string          `json:"email,omitempty"`
	Payload   *AttemptPayload `json:"-"`
}
