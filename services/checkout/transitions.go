package checkout

import (
	"errors"
	"fmt"

	"worldpay-checkout/models"
)

var ErrInvalidTransition = errors.New("invalid flow transition")

var transitions = map[models.FlowState][]models.FlowState{
	models.FlowLoadingPayment: {models.FlowMethodSelect, models.FlowForm, models.FlowError},
	models.FlowMethodSelect:   {models.FlowForm, models.FlowNativeRequest, models.FlowWallet},
	models.FlowForm:           {models.FlowMethodSelect, models.FlowSubmitting, models.FlowError},
	models.FlowNativeRequest:  {models.FlowMethodSelect, models.FlowForm, models.FlowSubmitting, models.FlowError},
	models.FlowWallet:         {models.FlowMethodSelect, models.FlowForm, models.FlowSubmitting, models.FlowFailed, models.FlowError},
	models.FlowSubmitting: {
		models.FlowSuccess, models.FlowChallengeThreeDS, models.FlowChallengeAccount,
		models.FlowFailed, models.FlowError,
	},
	models.FlowChallengeThreeDS: {models.FlowSuccess, models.FlowFailed, models.FlowError},
	models.FlowChallengeAccount: {models.FlowSubmitting, models.FlowFailed, models.FlowError},
	models.FlowFailed:           {models.FlowLoadingPayment},
	models.FlowError:            {models.FlowLoadingPayment},
	models.FlowSuccess:          nil,
}

// CanTransition reports whether the flow may move directly from one state to another.
func CanTransition(from, to models.FlowState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.FlowState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
