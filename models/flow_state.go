// models/flow_state.go
package models

type FlowState string

const (
	FlowLoadingPayment   FlowState = "LOADING_PAYMENT"
	FlowMethodSelect     FlowState = "METHOD_SELECT"
	FlowForm             FlowState = "FORM"
	FlowNativeRequest    FlowState = "NATIVE_REQUEST"
	FlowWallet           FlowState = "WALLET"
	FlowSubmitting       FlowState = "SUBMITTING"
	FlowSuccess          FlowState = "SUCCESS"
	FlowChallengeThreeDS FlowState = "CHALLENGE_3DS"
	FlowChallengeAccount FlowState = "CHALLENGE_ACCOUNT"
	FlowFailed           FlowState = "FAILED"
	FlowError            FlowState = "ERROR"
)

func (s FlowState) String() string {
	return string(s)
}

// IsTerminal reports whether the flow has stopped. Only a restart leaves FAILED or ERROR.
func (s FlowState) IsTerminal() bool {
	return s == FlowSuccess || s == FlowFailed || s == FlowError
}

// InFlight reports whether an attempt is outstanding in this state.
func (s FlowState) InFlight() bool {
	return s == FlowSubmitting || s == FlowChallengeThreeDS || s == FlowChallengeAccount
}

func (s FlowState) IsValid() bool {
	switch s {
	case FlowLoadingPayment, FlowMethodSelect, FlowForm, FlowNativeRequest, FlowWallet,
		FlowSubmitting, FlowSuccess, FlowChallengeThreeDS, FlowChallengeAccount, FlowFailed, FlowError:
		return true
	}
	return false
}
