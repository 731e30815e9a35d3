package models

import "fmt"

// ResultCode is the outcome of a transferability evaluation. Values are
// persisted and compared by callers: existing codes are never renumbered and
// new rules take the next free value.
type ResultCode uint8

const (
	// ResultUnknown is reserved and never returned by the evaluator.
	ResultUnknown ResultCode = 0
	// ResultOK is the only success value.
	ResultOK ResultCode = 1

	ResultInvalidSender      ResultCode = 2
	ResultNoRecipient        ResultCode = 3
	ResultInsufficientTokens ResultCode = 4
	ResultRateUnavailable    ResultCode = 5
	ResultUnknownSender      ResultCode = 6
	ResultUnknownReceiver    ResultCode = 7

	ResultReceptionCeilingExceeded ResultCode = 8
	ResultReceptionFloorNotMet     ResultCode = 9
	ResultEmissionCeilingExceeded  ResultCode = 10
	ResultEmissionFloorNotMet      ResultCode = 11

	ResultSenderHoldingPeriod         ResultCode = 12
	ResultSenderTransactionCooldown   ResultCode = 13
	ResultReceiverTransactionCooldown ResultCode = 14
	ResultEmissionCooldown            ResultCode = 15
	ResultReceptionCooldown           ResultCode = 16
)

var resultNames = map[ResultCode]string{
	ResultUnknown:                     "unknown",
	ResultOK:                          "ok",
	ResultInvalidSender:               "invalid_sender",
	ResultNoRecipient:                 "no_recipient",
	ResultInsufficientTokens:          "insufficient_tokens",
	ResultRateUnavailable:             "rate_unavailable",
	ResultUnknownSender:               "unknown_sender",
	ResultUnknownReceiver:             "unknown_receiver",
	ResultReceptionCeilingExceeded:    "reception_ceiling_exceeded",
	ResultReceptionFloorNotMet:        "reception_floor_not_met",
	ResultEmissionCeilingExceeded:     "emission_ceiling_exceeded",
	ResultEmissionFloorNotMet:         "emission_floor_not_met",
	ResultSenderHoldingPeriod:         "sender_holding_period",
	ResultSenderTransactionCooldown:   "sender_transaction_cooldown",
	ResultReceiverTransactionCooldown: "receiver_transaction_cooldown",
	ResultEmissionCooldown:            "emission_cooldown",
	ResultReceptionCooldown:           "reception_cooldown",
}

// IsOK reports whether the code allows the transfer.
func (c ResultCode) IsOK() bool {
	return c == ResultOK
}

// IsKnown reports whether c is part of the enumeration.
func (c ResultCode) IsKnown() bool {
	_, ok := resultNames[c]
	return ok
}

func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", uint8(c))
}
