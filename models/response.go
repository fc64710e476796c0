package models

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Backend reply states for a worldpay submission.
const (
	ReplySuccess         = "SUCCESS"
	ReplyThreeDS         = "3DS"
	ReplyExistingAccount = "EXISTING_ACCOUNT"
	ReplyFailed          = "FAILED"
)

type SubmissionReply struct {
	State        string      `json:"state"`
	Frame        string      `json:"frame,omitempty"`
	Verification interface{} `json:"verification,omitempty"`
}

type MerchantVerificationResponse struct {
	Verification interface{} `json:"verification"`
}

type WhoAmIResponse struct {
	User *string `json:"user"`
}
